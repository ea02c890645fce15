package domain

// UserProfile is the authenticated club member behind a request
type UserProfile struct {
	Sub   string   `json:"sub"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}
