package model

// LoginRequest carries credentials for the session store.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest carries a self-registration. Only doctors are accepted,
// the role is still bound so the store can reject other values explicitly.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     Role   `json:"role" binding:"required"`
}

// SessionState is what the session endpoint reports.
type SessionState struct {
	Authenticated bool      `json:"authenticated"`
	Loading       bool      `json:"loading"`
	User          *Identity `json:"user,omitempty"`
}
