package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/logging"
	"github.com/dmitrijs2005/hoot/internal/server/models"
	"github.com/dmitrijs2005/hoot/internal/server/services"
)

const testToken = "good-token"

var testUser = &models.User{ID: 7, UserName: "owl", Email: "owl@example.com", Verified: true}

type fakeTracks struct {
	create func(ctx context.Context, user *models.User, req services.CreateTrackRequest) (*models.Track, error)
	get    func(ctx context.Context, ownerID, id int64) (*models.Track, error)
	list   func(ctx context.Context, ownerID int64) (map[string][]*models.Track, error)
	delete func(ctx context.Context, ownerID, id int64) error
}

func (f *fakeTracks) Create(ctx context.Context, user *models.User, req services.CreateTrackRequest) (*models.Track, error) {
	return f.create(ctx, user, req)
}

func (f *fakeTracks) Get(ctx context.Context, ownerID, id int64) (*models.Track, error) {
	return f.get(ctx, ownerID, id)
}

func (f *fakeTracks) ListByPlaylist(ctx context.Context, ownerID int64) (map[string][]*models.Track, error) {
	return f.list(ctx, ownerID)
}

func (f *fakeTracks) Delete(ctx context.Context, ownerID, id int64) error {
	return f.delete(ctx, ownerID, id)
}

type fakeUsers struct {
	register       func(ctx context.Context, req services.RegisterRequest) error
	verify         func(ctx context.Context, code string) error
	login          func(ctx context.Context, email, password string) (string, error)
	authenticate   func(ctx context.Context, token string) (*models.User, error)
	status         func(ctx context.Context, user *models.User) (*services.Status, error)
	changePassword func(ctx context.Context, user *models.User, oldPassword, newPassword string) error
	linkPatreon    func(ctx context.Context, user *models.User, code string) (*services.Status, error)
}

func (f *fakeUsers) Register(ctx context.Context, req services.RegisterRequest) error {
	return f.register(ctx, req)
}

func (f *fakeUsers) Verify(ctx context.Context, code string) error { return f.verify(ctx, code) }

func (f *fakeUsers) Login(ctx context.Context, email, password string) (string, error) {
	return f.login(ctx, email, password)
}

// Authenticate accepts testToken unless overridden.
func (f *fakeUsers) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if f.authenticate != nil {
		return f.authenticate(ctx, token)
	}
	if token == testToken {
		return testUser, nil
	}
	return nil, common.ErrInvalidToken
}

func (f *fakeUsers) Status(ctx context.Context, user *models.User) (*services.Status, error) {
	return f.status(ctx, user)
}

func (f *fakeUsers) ChangePassword(ctx context.Context, user *models.User, oldPassword, newPassword string) error {
	return f.changePassword(ctx, user, oldPassword, newPassword)
}

func (f *fakeUsers) LinkPatreon(ctx context.Context, user *models.User, code string) (*services.Status, error) {
	return f.linkPatreon(ctx, user, code)
}

type fakeSubscriptions struct {
	handle func(ctx context.Context, body []byte, signature string) error
}

func (f *fakeSubscriptions) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	return f.handle(ctx, body, signature)
}

type testAPI struct {
	tracks *fakeTracks
	users  *fakeUsers
	subs   *fakeSubscriptions
	h      *Handler
	srv    http.Handler
}

func newTestAPI(t *testing.T, production bool) *testAPI {
	t.Helper()
	api := &testAPI{
		tracks: &fakeTracks{},
		users:  &fakeUsers{},
		subs:   &fakeSubscriptions{},
	}
	api.h = NewHandler(api.tracks, api.users, api.subs, logging.NewNop(), production, 1<<20)
	api.srv = api.h.Routes()
	return api
}

func (a *testAPI) do(t *testing.T, method, path string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.srv.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) doJSON(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	hdr := map[string]string{"Content-Type": "application/json"}
	if authed {
		hdr["Authorization"] = "Bearer " + testToken
	}
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return a.do(t, method, path, r, hdr)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, rec).Error
}
