package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/dbx"
	"github.com/dmitrijs2005/hoot/internal/logging"
	"github.com/dmitrijs2005/hoot/internal/server/auth"
	"github.com/dmitrijs2005/hoot/internal/server/config"
	"github.com/dmitrijs2005/hoot/internal/server/mail"
	"github.com/dmitrijs2005/hoot/internal/server/models"
	"github.com/dmitrijs2005/hoot/internal/server/patreon"
	"github.com/dmitrijs2005/hoot/internal/server/quota"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/users"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 64
	maxEmailLength    = 128

	verificationCodeBytes    = 32
	verificationCodeValidity = 10 * time.Minute
)

var userNameRe = regexp.MustCompile(`^[A-Za-z0-9 _-]{1,63}$`)

// identityProvider is the subscription provider's OAuth API.
type identityProvider interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Identity(ctx context.Context, tok *oauth2.Token) (*patreon.Identity, *oauth2.Token, error)
}

// RegisterRequest is a sign-up form.
type RegisterRequest struct {
	Email           string
	UserName        string
	Password        string
	ConfirmPassword string
}

// Status is what a signed-in user sees about their account.
type Status struct {
	UserName      string
	Email         string
	TotalStorage  int64
	UsedStorage   int64
	PatreonMember bool
	PatreonLinked bool
}

type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	mailer                      mail.Sender
	patreon                     identityProvider
	quota                       quota.Policy
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	website                     string
	logger                      logging.Logger

	now     func() time.Time
	newCode func() (string, error)
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, mailer mail.Sender, provider identityProvider, logger logging.Logger) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		mailer:                      mailer,
		patreon:                     provider,
		quota:                       quota.Policy{Base: cfg.BaseQuota, Elevated: cfg.ElevatedQuota},
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		website:                     cfg.Website,
		logger:                      logger,
		now:                         func() time.Time { return time.Now().UTC() },
		newCode:                     func() (string, error) { return common.MakeURLSafeToken(verificationCodeBytes) },
	}
}

func validPassword(password string) bool {
	n := utf8.RuneCountInString(password)
	return n >= minPasswordLength && n <= maxPasswordLength
}

// validUserName allows 1-63 letters, digits, spaces, '_' and '-', but not a
// leading or trailing space.
func validUserName(name string) bool {
	return userNameRe.MatchString(name) && !strings.HasPrefix(name, " ") && !strings.HasSuffix(name, " ")
}

func validEmail(email string) bool {
	return len(email) <= maxEmailLength && govalidator.IsExistingEmail(email)
}

// Register creates an unverified account, or refreshes an unverified one with
// the same email, and mails it a verification link. Nothing is saved when the
// email cannot be sent.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) error {
	if req.Password != req.ConfirmPassword {
		return common.ErrPasswordMismatch
	}
	if !validPassword(req.Password) {
		return common.ErrInvalidPassword
	}
	if !validUserName(req.UserName) {
		return common.ErrInvalidUsername
	}
	if !validEmail(req.Email) {
		return common.ErrInvalidEmail
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return err
	}
	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("error generating verification code: %w", err)
	}
	expiration := s.now().Add(verificationCodeValidity)

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		existing, err := repo.GetByEmail(ctx, req.Email)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		user := &models.User{
			UserName:                   req.UserName,
			Email:                      req.Email,
			PasswordHash:               hash,
			VerificationCode:           &code,
			VerificationCodeExpiration: &expiration,
		}

		switch {
		case existing == nil:
			if _, err := repo.Create(ctx, user); err != nil {
				return fmt.Errorf("error creating user: %w", err)
			}
		case existing.Verified:
			return common.ErrEmailTaken
		default:
			user.ID = existing.ID
			if err := repo.UpdateRegistration(ctx, user); err != nil {
				return fmt.Errorf("error updating user: %w", err)
			}
		}

		msg, err := mail.VerificationMessage(req.Email, s.verificationURL(code))
		if err != nil {
			return err
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			s.logger.Error(ctx, "sending verification email failed", "error", err)
			return common.ErrInvalidEmail
		}
		return nil
	})
}

func (s *UserService) verificationURL(code string) string {
	return fmt.Sprintf("https://%s/verify/%s", s.website, code)
}

// Verify marks the account holding an unexpired code as verified.
func (s *UserService) Verify(ctx context.Context, code string) error {
	if code == "" {
		return common.ErrInvalidCode
	}
	if _, err := s.repomanager.Users(s.db).Verify(ctx, code, s.now()); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidCode
		}
		return err
	}
	return nil
}

// Login checks the credentials of a verified account and issues an access
// token for it.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", common.ErrInvalidRequest
	}

	user, err := s.repomanager.Users(s.db).GetVerifiedByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrLoginFailed
		}
		return "", err
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return "", common.ErrLoginFailed
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}

// Authenticate resolves an access token to its user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	id, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	return user, nil
}

// Status reports the account's storage allowance and usage.
func (s *UserService) Status(ctx context.Context, user *models.User) (*Status, error) {
	sizes, err := s.repomanager.Tracks(s.db).Sizes(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Status{
		UserName:      user.UserName,
		Email:         user.Email,
		TotalStorage:  s.quota.TotalStorage(user),
		UsedStorage:   quota.UsedStorage(sizes),
		PatreonMember: user.PatreonMember,
		PatreonLinked: user.PatreonID != nil,
	}, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, user *models.User, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return common.ErrInvalidRequest
	}
	if err := auth.CheckPassword(user.PasswordHash, oldPassword); err != nil {
		return err
	}
	return s.setPassword(ctx, user.ID, newPassword)
}

// SetPassword replaces the password of the account registered with email
// without checking the current one.
func (s *UserService) SetPassword(ctx context.Context, email, newPassword string) error {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, user.ID, newPassword)
}

func (s *UserService) setPassword(ctx context.Context, id int64, password string) error {
	if !validPassword(password) {
		return common.ErrInvalidPassword
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.repomanager.Users(s.db).UpdatePassword(ctx, id, hash)
}

// LinkPatreon connects the user to the Patreon account that granted code and
// records its current membership.
func (s *UserService) LinkPatreon(ctx context.Context, user *models.User, code string) (*Status, error) {
	if code == "" {
		return nil, common.ErrInvalidRequest
	}

	tok, err := s.patreon.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrLinkFailed, err)
	}
	identity, tok, err := s.patreon.Identity(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrLinkFailed, err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		owner, err := repo.GetByPatreonID(ctx, identity.ID)
		switch {
		case err == nil && owner.ID != user.ID:
			return fmt.Errorf("%w: account is linked to another user", common.ErrLinkFailed)
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return err
		}

		if err := repo.LinkPatreon(ctx, user.ID, identity.ID, tokensOf(tok)); err != nil {
			return err
		}
		return repo.UpdateMembership(ctx, user.ID, users.Membership{
			Member:      identity.IsMember,
			LastPayment: identity.Member.LastPayment(),
			LastChecked: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "patreon account linked", "user_id", user.ID, "member", identity.IsMember)

	user.PatreonID = &identity.ID
	user.PatreonMember = identity.IsMember
	return s.Status(ctx, user)
}

func tokensOf(tok *oauth2.Token) users.Tokens {
	return users.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}
