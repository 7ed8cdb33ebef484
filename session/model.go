package session

// PendingTwoFactor is the marker stored under session:<accountID> between a
// password-verified login and the second-factor check.
type PendingTwoFactor struct {
	Email             string `json:"email"`
	Token             string `json:"token"`
	RequiresTwoFactor bool   `json:"requiresTwoFactor"`
	IPAddress         string `json:"ipAddress,omitempty"`
	CreatedAt         int64  `json:"createdAt,omitempty"`
}
