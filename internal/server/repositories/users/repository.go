package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/hoot/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// GetByEmail prefers the verified row when several share the address.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetVerifiedByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPatreonID(ctx context.Context, patreonID string) (*models.User, error)

	UpdateRegistration(ctx context.Context, user *models.User) error
	Verify(ctx context.Context, code string, now time.Time) (int64, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error

	LinkPatreon(ctx context.Context, id int64, patreonID string, token Tokens) error
	UpdatePatreonTokens(ctx context.Context, id int64, token Tokens) error
	UpdateMembership(ctx context.Context, id int64, m Membership) error
	ListDueForSync(ctx context.Context, checkedBefore time.Time) ([]*models.User, error)
}

// Tokens is an OAuth token pair as persisted for the subscription provider.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Membership is the subscription state written after a webhook or a sync.
// A nil LastPayment leaves the stored value unchanged.
type Membership struct {
	Member      bool
	LastPayment *time.Time
	LastChecked time.Time
}
