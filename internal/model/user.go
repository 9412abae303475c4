package model

// Role of an identity. Fixed at creation.
type Role string

// Role constants
const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Identity represents an authenticated user
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// IsDoctor reports whether the identity may use doctor-only views.
func (i *Identity) IsDoctor() bool {
	return i != nil && i.Role == RoleDoctor
}

// DemoDoctor is the account seeded into an empty roster.
func DemoDoctor() Identity {
	return Identity{ID: "1", Email: "doctor@example.com", Name: "Dr. Smith", Role: RoleDoctor}
}
