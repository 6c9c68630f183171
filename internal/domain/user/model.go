package user

import "strings"

// Principal is the identity behind a verified access token.
type Principal struct {
	UserID      string
	Email       string
	DisplayName string
}

// Name returns the display name, or fallback when the account has none.
func (p Principal) Name(fallback string) string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return fallback
}
