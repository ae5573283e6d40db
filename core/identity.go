package core

// Role is the dashboard role a user authenticated with.
type Role string

const (
	RoleApplicant Role = "applicant"
	RoleLawyer    Role = "lawyer"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleApplicant, RoleLawyer, RoleAdmin:
		return true
	}
	return false
}

// Identity is the authenticated principal bound to a connection at
// handshake. It never changes for the lifetime of the connection.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}
