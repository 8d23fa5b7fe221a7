package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/logging"
	"github.com/dmitrijs2005/hoot/internal/server/config"
	"github.com/dmitrijs2005/hoot/internal/server/models"
	"github.com/dmitrijs2005/hoot/internal/server/patreon"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/users"
)

// Identity API calls made by one sync pass are paced to stay well inside
// the provider's rate limit.
const (
	syncRate  = rate.Limit(1)
	syncBurst = 5
)

// SubscriptionService keeps the elevated-quota flag in line with Patreon,
// from webhooks as they arrive and from a periodic re-check.
type SubscriptionService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	patreon       identityProvider
	webhookSecret []byte
	maxAge        time.Duration
	interval      time.Duration
	limiter       *rate.Limiter
	logger        logging.Logger
	now           func() time.Time
}

func NewSubscriptionService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, provider identityProvider, logger logging.Logger) *SubscriptionService {
	return &SubscriptionService{
		db:            db,
		repomanager:   m,
		patreon:       provider,
		webhookSecret: []byte(cfg.PatreonWebhookSecret),
		maxAge:        cfg.SubscriptionMaxAge,
		interval:      cfg.SubscriptionSyncInterval,
		limiter:       rate.NewLimiter(syncRate, syncBurst),
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// HandleWebhook applies a signed membership webhook. A webhook can grant
// membership but never revokes it; lapsed members are caught by SyncDue.
func (s *SubscriptionService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if len(s.webhookSecret) == 0 || !patreon.VerifySignature(s.webhookSecret, body, signature) {
		return common.ErrInvalidSignature
	}

	ev, err := patreon.ParseWebhook(body)
	if err != nil {
		if errors.Is(err, patreon.ErrNoUser) {
			return common.ErrInvalidPatron
		}
		return common.ErrInvalidRequest
	}

	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByPatreonID(ctx, ev.PatreonID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidPatron
		}
		return err
	}

	m := users.Membership{
		Member:      user.PatreonMember || ev.Member.Active(),
		LastPayment: ev.Member.LastPayment(),
		LastChecked: s.now(),
	}
	if err := repo.UpdateMembership(ctx, user.ID, m); err != nil {
		return err
	}

	s.logger.Info(ctx, "membership updated from webhook", "user_id", user.ID, "member", m.Member)
	return nil
}

// SyncDue re-reads the membership of every linked account not checked within
// the max age and returns how many were updated. Accounts whose check fails
// are logged and left for the next pass.
func (s *SubscriptionService) SyncDue(ctx context.Context) (int, error) {
	repo := s.repomanager.Users(s.db)

	due, err := repo.ListDueForSync(ctx, s.now().Add(-s.maxAge))
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, u := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			return synced, err
		}
		if err := s.syncUser(ctx, u); err != nil {
			subscriptionSyncsTotal.WithLabelValues("error").Inc()
			s.logger.Warn(ctx, "subscription sync failed", "user_id", u.ID, "error", err)
			continue
		}
		subscriptionSyncsTotal.WithLabelValues("ok").Inc()
		synced++
	}
	return synced, nil
}

func (s *SubscriptionService) syncUser(ctx context.Context, u *models.User) error {
	repo := s.repomanager.Users(s.db)

	stored := storedToken(u)
	identity, current, err := s.patreon.Identity(ctx, stored)
	if err != nil {
		return err
	}

	if current.AccessToken != stored.AccessToken || current.RefreshToken != stored.RefreshToken {
		if err := repo.UpdatePatreonTokens(ctx, u.ID, tokensOf(current)); err != nil {
			return err
		}
	}

	return repo.UpdateMembership(ctx, u.ID, users.Membership{
		Member:      identity.IsMember,
		LastPayment: identity.Member.LastPayment(),
		LastChecked: s.now(),
	})
}

func storedToken(u *models.User) *oauth2.Token {
	tok := &oauth2.Token{TokenType: "Bearer"}
	if u.PatreonAccessToken != nil {
		tok.AccessToken = *u.PatreonAccessToken
	}
	if u.PatreonRefreshToken != nil {
		tok.RefreshToken = *u.PatreonRefreshToken
	}
	if u.PatreonAccessTokenExpiry != nil {
		tok.Expiry = *u.PatreonAccessTokenExpiry
	}
	return tok
}

// Run calls SyncDue every interval until ctx is done.
func (s *SubscriptionService) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SyncDue(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error(ctx, "subscription sync pass failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info(ctx, "subscriptions synced", "count", n)
			}
		}
	}
}
