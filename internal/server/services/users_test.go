package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/server/auth"
	"github.com/dmitrijs2005/hoot/internal/server/config"
	"github.com/dmitrijs2005/hoot/internal/server/models"
	"github.com/dmitrijs2005/hoot/internal/server/patreon"
)

type userFixture struct {
	svc      *UserService
	store    *memStore
	mock     sqlmock.Sqlmock
	mailer   *fakeMailer
	provider *fakeProvider
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	store := newMemStore()
	mailer := &fakeMailer{}
	provider := &fakeProvider{identities: map[string]*patreon.Identity{}}

	cfg := &config.Config{
		SecretKey:                   "k",
		AccessTokenValidityDuration: time.Hour,
		Website:                     "hoot.test",
		BaseQuota:                   2 * common.GiB,
		ElevatedQuota:               10 * common.GiB,
	}
	svc := NewUserService(db, &fakeRepoManager{store}, cfg, mailer, provider, nopLogger())
	svc.now = func() time.Time { return fixedNow }
	svc.newCode = func() (string, error) { return "code-1", nil }

	return &userFixture{svc: svc, store: store, mock: mock, mailer: mailer, provider: provider}
}

func (f *userFixture) addVerified(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return f.store.addUser(&models.User{UserName: "owl", Email: email, PasswordHash: hash, Verified: true})
}

func validRegistration() RegisterRequest {
	return RegisterRequest{
		Email:           "owl@example.com",
		UserName:        "Night Owl_1",
		Password:        "hunter2hunter2",
		ConfirmPassword: "hunter2hunter2",
	}
}

func TestRegister_NewUser(t *testing.T) {
	f := newUserFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.Register(context.Background(), validRegistration()))

	u, err := (&fakeUsersRepo{f.store}).GetByEmail(context.Background(), "owl@example.com")
	require.NoError(t, err)
	assert.False(t, u.Verified)
	assert.Equal(t, "Night Owl_1", u.UserName)
	require.NotNil(t, u.VerificationCode)
	assert.Equal(t, "code-1", *u.VerificationCode)
	assert.Equal(t, fixedNow.Add(10*time.Minute), *u.VerificationCodeExpiration)
	require.NoError(t, auth.CheckPassword(u.PasswordHash, "hunter2hunter2"))

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "owl@example.com", f.mailer.sent[0].To)
	assert.Contains(t, f.mailer.sent[0].Text, "https://hoot.test/verify/code-1")

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *RegisterRequest)
		wantErr error
	}{
		{"passwords differ", func(r *RegisterRequest) { r.ConfirmPassword = "something-else" }, common.ErrPasswordMismatch},
		{"password too short", func(r *RegisterRequest) { r.Password, r.ConfirmPassword = "short", "short" }, common.ErrInvalidPassword},
		{"password too long", func(r *RegisterRequest) {
			p := strings.Repeat("p", 65)
			r.Password, r.ConfirmPassword = p, p
		}, common.ErrInvalidPassword},
		{"empty username", func(r *RegisterRequest) { r.UserName = "" }, common.ErrInvalidUsername},
		{"leading space", func(r *RegisterRequest) { r.UserName = " owl" }, common.ErrInvalidUsername},
		{"trailing space", func(r *RegisterRequest) { r.UserName = "owl " }, common.ErrInvalidUsername},
		{"bad characters", func(r *RegisterRequest) { r.UserName = "owl!" }, common.ErrInvalidUsername},
		{"username too long", func(r *RegisterRequest) { r.UserName = strings.Repeat("o", 64) }, common.ErrInvalidUsername},
		{"email malformed", func(r *RegisterRequest) { r.Email = "not-an-email" }, common.ErrInvalidEmail},
		{"email too long", func(r *RegisterRequest) { r.Email = strings.Repeat("a", 120) + "@example.com" }, common.ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture(t)
			req := validRegistration()
			tt.mutate(&req)

			err := f.svc.Register(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.mailer.sent)
			require.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestRegister_VerifiedEmailTaken(t *testing.T) {
	f := newUserFixture(t)
	f.addVerified(t, "owl@example.com", "hunter2hunter2")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.Register(context.Background(), validRegistration())
	assert.ErrorIs(t, err, common.ErrEmailTaken)
	assert.Empty(t, f.mailer.sent)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegister_RefreshesUnverified(t *testing.T) {
	f := newUserFixture(t)
	old := "old-code"
	oldExp := fixedNow.Add(-time.Hour)
	existing := f.store.addUser(&models.User{
		UserName: "first try", Email: "owl@example.com", PasswordHash: "x",
		VerificationCode: &old, VerificationCodeExpiration: &oldExp,
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.Register(context.Background(), validRegistration()))

	u, err := (&fakeUsersRepo{f.store}).GetByID(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Night Owl_1", u.UserName)
	assert.Equal(t, "code-1", *u.VerificationCode)
	assert.Equal(t, fixedNow.Add(10*time.Minute), *u.VerificationCodeExpiration)
	assert.Len(t, f.store.users, 1)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegister_MailFailureRollsBack(t *testing.T) {
	f := newUserFixture(t)
	f.mailer.err = errors.New("535 authentication failed")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.Register(context.Background(), validRegistration())
	assert.ErrorIs(t, err, common.ErrInvalidEmail)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVerify(t *testing.T) {
	f := newUserFixture(t)
	valid, expired := "good", "late"
	validExp, expiredExp := fixedNow.Add(time.Minute), fixedNow.Add(-time.Minute)
	u := f.store.addUser(&models.User{Email: "a@example.com", VerificationCode: &valid, VerificationCodeExpiration: &validExp})
	f.store.addUser(&models.User{Email: "b@example.com", VerificationCode: &expired, VerificationCodeExpiration: &expiredExp})

	assert.ErrorIs(t, f.svc.Verify(context.Background(), "late"), common.ErrInvalidCode)
	assert.ErrorIs(t, f.svc.Verify(context.Background(), "unknown"), common.ErrInvalidCode)
	assert.ErrorIs(t, f.svc.Verify(context.Background(), ""), common.ErrInvalidCode)

	require.NoError(t, f.svc.Verify(context.Background(), "good"))
	got, err := (&fakeUsersRepo{f.store}).GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Nil(t, got.VerificationCode)

	// a used code cannot be replayed
	assert.ErrorIs(t, f.svc.Verify(context.Background(), "good"), common.ErrInvalidCode)
}

func TestLoginAndAuthenticate(t *testing.T) {
	f := newUserFixture(t)
	u := f.addVerified(t, "owl@example.com", "hunter2hunter2")
	f.store.addUser(&models.User{Email: "new@example.com", PasswordHash: u.PasswordHash})

	token, err := f.svc.Login(context.Background(), "owl@example.com", "hunter2hunter2")
	require.NoError(t, err)

	got, err := f.svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.svc.Login(context.Background(), "owl@example.com", "wrong-password")
	assert.ErrorIs(t, err, common.ErrLoginFailed)

	_, err = f.svc.Login(context.Background(), "new@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, common.ErrLoginFailed, "unverified accounts cannot log in")

	_, err = f.svc.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestAuthenticate_Errors(t *testing.T) {
	f := newUserFixture(t)

	_, err := f.svc.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	token, err := auth.GenerateToken(999, []byte("k"), time.Hour)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestStatus(t *testing.T) {
	f := newUserFixture(t)
	u := f.addVerified(t, "owl@example.com", "hunter2hunter2")
	f.store.addTrack(&models.Track{OwnerID: u.ID, Size: 2_000_000_000, ObjectKey: "a"})

	st, err := f.svc.Status(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, int64(2147483648), st.TotalStorage)
	assert.Equal(t, int64(2_000_000_000), st.UsedStorage)
	assert.False(t, st.PatreonLinked)

	u.PatreonMember = true
	st, err = f.svc.Status(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, 10*common.GiB, st.TotalStorage)
}

func TestChangePassword(t *testing.T) {
	f := newUserFixture(t)
	u := f.addVerified(t, "owl@example.com", "hunter2hunter2")

	assert.ErrorIs(t, f.svc.ChangePassword(context.Background(), u, "nope-nope", "brand-new-pass"), common.ErrIncorrectPassword)
	assert.ErrorIs(t, f.svc.ChangePassword(context.Background(), u, "hunter2hunter2", "short"), common.ErrInvalidPassword)
	assert.ErrorIs(t, f.svc.ChangePassword(context.Background(), u, "", ""), common.ErrInvalidRequest)

	require.NoError(t, f.svc.ChangePassword(context.Background(), u, "hunter2hunter2", "brand-new-pass"))
	_, err := f.svc.Login(context.Background(), "owl@example.com", "brand-new-pass")
	require.NoError(t, err)
}

func TestSetPassword(t *testing.T) {
	f := newUserFixture(t)
	f.addVerified(t, "owl@example.com", "hunter2hunter2")

	require.NoError(t, f.svc.SetPassword(context.Background(), "owl@example.com", "reset-by-admin"))
	_, err := f.svc.Login(context.Background(), "owl@example.com", "reset-by-admin")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.SetPassword(context.Background(), "nobody@example.com", "reset-by-admin"), common.ErrorNotFound)
}

func TestLinkPatreon(t *testing.T) {
	f := newUserFixture(t)
	u := f.addVerified(t, "owl@example.com", "hunter2hunter2")

	paid := fixedNow.Add(-48 * time.Hour)
	f.provider.exchangeTok = &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: fixedNow.Add(time.Hour)}
	f.provider.identities["at"] = &patreon.Identity{
		ID:       "4242",
		IsMember: true,
		Member:   patreon.MemberAttributes{PatronStatus: "active_patron", CurrentlyEntitledAmountCents: 300, LastChargeDate: &paid, LastChargeStatus: "Paid"},
	}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	st, err := f.svc.LinkPatreon(context.Background(), u, "the-code")
	require.NoError(t, err)
	assert.True(t, st.PatreonLinked)
	assert.True(t, st.PatreonMember)
	assert.Equal(t, 10*common.GiB, st.TotalStorage)

	got, err := (&fakeUsersRepo{f.store}).GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "4242", *got.PatreonID)
	assert.Equal(t, "rt", *got.PatreonRefreshToken)
	assert.Equal(t, paid, *got.PatreonLastPayment)
	assert.Equal(t, fixedNow, *got.PatreonLastChecked)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLinkPatreon_Errors(t *testing.T) {
	t.Run("missing code", func(t *testing.T) {
		f := newUserFixture(t)
		_, err := f.svc.LinkPatreon(context.Background(), &models.User{ID: 1}, "")
		assert.ErrorIs(t, err, common.ErrInvalidRequest)
	})

	t.Run("exchange fails", func(t *testing.T) {
		f := newUserFixture(t)
		f.provider.exchangeErr = errors.New("invalid_grant")
		_, err := f.svc.LinkPatreon(context.Background(), &models.User{ID: 1}, "code")
		assert.ErrorIs(t, err, common.ErrLinkFailed)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("linked to someone else", func(t *testing.T) {
		f := newUserFixture(t)
		other := f.addVerified(t, "other@example.com", "hunter2hunter2")
		other.PatreonID = strPtr("4242")
		me := f.addVerified(t, "owl@example.com", "hunter2hunter2")

		f.provider.exchangeTok = &oauth2.Token{AccessToken: "at"}
		f.provider.identities["at"] = &patreon.Identity{ID: "4242"}
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		_, err := f.svc.LinkPatreon(context.Background(), me, "code")
		assert.ErrorIs(t, err, common.ErrLinkFailed)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})
}
