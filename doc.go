// Package identity manages user accounts across their full lifecycle:
// registration with email activation, password based login backed by
// revocable bearer sessions, password recovery with single use tokens,
// and profile management with an attached postal address.
//
// State transitions that must happen at most once, like activating an
// account or consuming a reset token, are enforced with guarded updates
// inside transactions, so concurrent attempts resolve to one winner and
// deterministic errors for the rest.
package identity
