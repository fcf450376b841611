package identity

type authIdentity struct {
	id    string
	email string
	role  string
}

func (a authIdentity) ID() string {
	return a.id
}

func (a authIdentity) Email() string {
	return a.email
}

func (a authIdentity) Role() string {
	return a.role
}

var _ Identity = authIdentity{}

// NewIdentity builds an Identity value from its raw attributes.
func NewIdentity(id, email, role string) Identity {
	return authIdentity{id: id, email: email, role: role}
}

func identityFromUser(user *User) Identity {
	return authIdentity{
		id:    user.ID.String(),
		email: user.Email,
		role:  string(user.Role),
	}
}
