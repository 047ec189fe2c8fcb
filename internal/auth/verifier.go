// Package auth resolves bearer credentials presented at handshake time.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"venue-system/internal/domain"
)

var (
	ErrNoCredential      = errors.New("no credential supplied")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrIdentityNotFound  = errors.New("identity not found")
)

// CloseCode maps a handshake rejection to the websocket close code the
// client receives.
func CloseCode(err error) int {
	switch {
	case errors.Is(err, ErrNoCredential):
		return 4001
	case errors.Is(err, ErrInvalidCredential):
		return 4002
	case errors.Is(err, ErrIdentityNotFound):
		return 4003
	default:
		return 4000
	}
}

type Verifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// PG resolves tokens against the access_tokens table.
type PG struct {
	pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG { return &PG{pool: pool} }

func (v *PG) Verify(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, ErrNoCredential
	}

	var (
		subjectID  *string
		name, role string
		isCustomer bool
	)
	err := v.pool.QueryRow(ctx, `
		SELECT subject_id, subject_name, role, is_customer
		FROM access_tokens WHERE token = $1`, token,
	).Scan(&subjectID, &name, &role, &isCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Identity{}, ErrInvalidCredential
		}
		return domain.Identity{}, fmt.Errorf("verify token: %w", err)
	}
	if subjectID == nil || *subjectID == "" {
		return domain.Identity{}, ErrIdentityNotFound
	}

	return domain.Identity{
		ID:         *subjectID,
		Name:       name,
		Role:       domain.Role(role),
		IsCustomer: isCustomer,
	}, nil
}
