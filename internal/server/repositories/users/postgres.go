package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/dbx"
	"github.com/dmitrijs2005/hoot/internal/server/models"
)

const userColumns = `id, username, email, password, verified, verification_code, verification_code_expiration,
		 patreon_member, patreon_id, patreon_member_last_checked, patreon_last_payment,
		 patreon_access_token, patreon_refresh_token, patreon_access_token_expiration`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.UserName, &u.Email, &u.PasswordHash, &u.Verified,
		&u.VerificationCode, &u.VerificationCodeExpiration,
		&u.PatreonMember, &u.PatreonID, &u.PatreonLastChecked, &u.PatreonLastPayment,
		&u.PatreonAccessToken, &u.PatreonRefreshToken, &u.PatreonAccessTokenExpiry)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (username, email, password, verification_code, verification_code_expiration)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.Email, user.PasswordHash, user.VerificationCode, user.VerificationCodeExpiration).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 ORDER BY verified DESC, id LIMIT 1`, email)
}

func (r *PostgresRepository) GetVerifiedByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND verified`, email)
}

func (r *PostgresRepository) GetByPatreonID(ctx context.Context, patreonID string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE patreon_id = $1 LIMIT 1`, patreonID)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// UpdateRegistration rewrites the name, password hash and verification code
// of an unverified account that registers again.
func (r *PostgresRepository) UpdateRegistration(ctx context.Context, user *models.User) error {
	return r.exec(ctx,
		`UPDATE users SET username = $2, password = $3, verification_code = $4, verification_code_expiration = $5
		 WHERE id = $1 AND NOT verified`,
		user.ID, user.UserName, user.PasswordHash, user.VerificationCode, user.VerificationCodeExpiration)
}

// Verify marks the account owning an unexpired code as verified and clears
// the code. It returns the account id or common.ErrorNotFound.
func (r *PostgresRepository) Verify(ctx context.Context, code string, now time.Time) (int64, error) {
	query :=
		`UPDATE users SET verified = TRUE, verification_code = NULL, verification_code_expiration = NULL
		 WHERE NOT verified AND verification_code = $1 AND verification_code_expiration >= $2
		 RETURNING id`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, code, now.UTC()).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return r.exec(ctx, `UPDATE users SET password = $2 WHERE id = $1`, id, hash)
}

func (r *PostgresRepository) LinkPatreon(ctx context.Context, id int64, patreonID string, token Tokens) error {
	return r.exec(ctx,
		`UPDATE users SET patreon_id = $2, patreon_access_token = $3, patreon_refresh_token = $4, patreon_access_token_expiration = $5
		 WHERE id = $1`,
		id, patreonID, token.AccessToken, token.RefreshToken, token.Expiry.UTC())
}

func (r *PostgresRepository) UpdatePatreonTokens(ctx context.Context, id int64, token Tokens) error {
	return r.exec(ctx,
		`UPDATE users SET patreon_access_token = $2, patreon_refresh_token = $3, patreon_access_token_expiration = $4
		 WHERE id = $1`,
		id, token.AccessToken, token.RefreshToken, token.Expiry.UTC())
}

func (r *PostgresRepository) UpdateMembership(ctx context.Context, id int64, m Membership) error {
	var lastPayment *time.Time
	if m.LastPayment != nil {
		t := m.LastPayment.UTC()
		lastPayment = &t
	}
	return r.exec(ctx,
		`UPDATE users SET patreon_member = $2, patreon_last_payment = COALESCE($3, patreon_last_payment), patreon_member_last_checked = $4
		 WHERE id = $1`,
		id, m.Member, lastPayment, m.LastChecked.UTC())
}

// ListDueForSync returns linked accounts whose membership was last checked
// before checkedBefore, or never.
func (r *PostgresRepository) ListDueForSync(ctx context.Context, checkedBefore time.Time) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE patreon_refresh_token IS NOT NULL
		   AND (patreon_member_last_checked IS NULL OR patreon_member_last_checked < $1)
		 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, checkedBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
