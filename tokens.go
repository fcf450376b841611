package identity

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// opaqueTokenBytes sizes the random payload of issued tokens. 32 bytes
// gives 256 bits of entropy; collisions are negligible and the unique
// column constraint closes any remaining race.
const opaqueTokenBytes = 32

// IssueOpaqueToken creates an unguessable URL safe token and its expiry
// instant. TTL values come from deployment configuration; activation and
// password reset flows use separate policies.
func IssueOpaqueToken(ttl time.Duration) (string, time.Time, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read token entropy")
	}

	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, time.Now().Add(ttl), nil
}
