package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/riskibarqy/porras-fc/internal/domain/league"
)

const (
	pqUniqueViolation           = "23505"
	pqUndefinedFunction         = "42883"
	pqInvalidTextRepresentation = "22P02"
)

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isMalformedID reports a lookup key Postgres rejected before matching, such as
// a non-UUID string compared against a UUID column.
func isMalformedID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqInvalidTextRepresentation
}

// classifyError attaches the matching domain error to well-known Postgres failures
// and keeps the driver's message in the chain.
func classifyError(op string, err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch string(pqErr.Code) {
	case pqUniqueViolation:
		switch pqErr.Constraint {
		case leagueCodeConstraint:
			return fmt.Errorf("%s: %w: %w", op, league.ErrDuplicateCode, err)
		case leagueMemberUserConstraint:
			return fmt.Errorf("%s: %w: %w", op, league.ErrDuplicateMembership, err)
		}
	case pqUndefinedFunction:
		return fmt.Errorf("%s: %w: %w", op, league.ErrProcedureUnavailable, err)
	case pqInvalidTextRepresentation:
		return fmt.Errorf("%s: %w: %w", op, league.ErrMalformedID, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
