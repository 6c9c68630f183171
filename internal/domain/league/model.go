package league

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// CodeLength is the fixed length of an invite code.
	CodeLength = 6
	// CodeAlphabet holds the base-36 digits invite codes are drawn from.
	CodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	MaxNameLength        = 120
	MaxDescriptionLength = 500
)

// Role is a member's standing within one league.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

var (
	// ErrDuplicateCode reports that the invite code is already taken by another league.
	ErrDuplicateCode = errors.New("league code already exists")
	// ErrDuplicateMembership reports that the user already holds a membership in the league.
	ErrDuplicateMembership = errors.New("league membership already exists")
	// ErrProcedureUnavailable reports that the store cannot create a league and its admin atomically.
	ErrProcedureUnavailable = errors.New("create_league_with_member is not available")
	// ErrMalformedID reports an identifier the store cannot parse, so no row can match it.
	ErrMalformedID = errors.New("malformed identifier")
)

// League is a private, invite-coded group of players.
type League struct {
	ID          string
	Name        string
	Description *string
	Code        string
	OwnerID     string
	CreatedAt   time.Time
}

func (l League) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("league id is required")
	}
	if err := ValidateName(l.Name); err != nil {
		return err
	}
	if !ValidCode(l.Code) {
		return fmt.Errorf("league code %q is not a %d-character base-36 code", l.Code, CodeLength)
	}
	if strings.TrimSpace(l.OwnerID) == "" {
		return fmt.Errorf("league owner is required")
	}
	if l.Description != nil && utf8.RuneCountInString(*l.Description) > MaxDescriptionLength {
		return fmt.Errorf("league description must be at most %d characters", MaxDescriptionLength)
	}
	return nil
}

// DescriptionOr returns the description, or fallback when it is absent or blank.
func (l League) DescriptionOr(fallback string) string {
	if l.Description == nil || strings.TrimSpace(*l.Description) == "" {
		return fallback
	}
	return *l.Description
}

func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("league name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("league name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// NormalizeCode trims and uppercases a user-supplied invite code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code has the invite-code shape (already normalized).
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// Membership links a user to a league.
type Membership struct {
	LeagueID string
	UserID   string
	Role     Role
	JoinedAt time.Time
}

func (m Membership) Validate() error {
	if strings.TrimSpace(m.LeagueID) == "" {
		return fmt.Errorf("membership league id is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("membership user id is required")
	}
	if !m.Role.Valid() {
		return fmt.Errorf("membership role %q is invalid", m.Role)
	}
	return nil
}

// MemberLeague is a league seen through one member's membership.
type MemberLeague struct {
	League   League
	Role     Role
	JoinedAt time.Time
}
