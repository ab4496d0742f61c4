package model

// User is the session-scoped user record. Points is mutated only by login,
// profile edit, logout and the monotonic merge in internal/points.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
	Role   string `json:"role"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// Summary is the authoritative points summary used for boot hydration.
type Summary struct {
	TotalPoints int `json:"total_points"`
	ScanCount   int `json:"scan_count,omitempty"`
}
