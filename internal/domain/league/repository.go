package league

import "context"

// Repository describes league persistence needs from use cases.
// Create and AddMember are independent writes; callers own any consistency between them.
type Repository interface {
	Create(ctx context.Context, league League) error
	GetByID(ctx context.Context, leagueID string) (League, bool, error)
	GetByCode(ctx context.Context, code string) (League, bool, error)
	AddMember(ctx context.Context, membership Membership) error
	GetMembership(ctx context.Context, leagueID, userID string) (Membership, bool, error)
	// ListByMember returns the user's leagues, most recently joined first.
	ListByMember(ctx context.Context, userID string) ([]MemberLeague, error)
	// ListMembers returns a league's members, earliest joined first.
	ListMembers(ctx context.Context, leagueID string) ([]Membership, error)
	CountMembers(ctx context.Context, leagueID string) (int, error)
}

// AtomicCreator creates a league and its ADMIN membership in one transaction.
type AtomicCreator interface {
	// CreateWithMember returns the new league id. A nil description is stored as absent.
	CreateWithMember(ctx context.Context, name, code string, description *string, ownerID string) (string, error)
	// SupportsCreateWithMember probes whether CreateWithMember can be used.
	SupportsCreateWithMember(ctx context.Context) (bool, error)
}

// Store is a Repository that may also support atomic creation.
type Store interface {
	Repository
	AtomicCreator
}
