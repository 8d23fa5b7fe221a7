package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/dbx"
	"github.com/dmitrijs2005/hoot/internal/logging"
	"github.com/dmitrijs2005/hoot/internal/server/mail"
	"github.com/dmitrijs2005/hoot/internal/server/models"
	"github.com/dmitrijs2005/hoot/internal/server/objectstore"
	"github.com/dmitrijs2005/hoot/internal/server/patreon"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/playlists"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/tracks"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var fixedNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

// --- in-memory store behind the fake repositories ---

type memStore struct {
	mu sync.Mutex

	nextID    int64
	users     map[int64]*models.User
	tracks    map[int64]*models.Track
	playlists []*models.Playlist
	members   map[[2]int64]bool

	playlistCreates int
	saveSources     int

	trackCreateErr error
	trackDeleteErr error
	saveSourceErr  error
	sizesErr       error
	userCreateErr  error
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[int64]*models.User{},
		tracks:  map[int64]*models.Track{},
		members: map[[2]int64]bool{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addUser(u *models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = u
	return u
}

func (s *memStore) addTrack(t *models.Track) *models.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	cp := *t
	s.tracks[t.ID] = &cp
	return t
}

func (s *memStore) addPlaylist(ownerID int64, name string, trackIDs ...int64) *models.Playlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.Playlist{ID: s.id(), OwnerID: ownerID, Name: name}
	s.playlists = append(s.playlists, p)
	for _, id := range trackIDs {
		s.members[[2]int64{p.ID, id}] = true
	}
	return p
}

func (s *memStore) playlistNames(ownerID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.playlists {
		if p.OwnerID == ownerID {
			out = append(out, p.Name)
		}
	}
	sort.Strings(out)
	return out
}

func (s *memStore) trackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// --- users ---

type fakeUsersRepo struct{ s *memStore }

func copyUser(u *models.User) *models.User {
	cp := *u
	return &cp
}

func (r *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if r.s.userCreateErr != nil {
		return nil, r.s.userCreateErr
	}
	return copyUser(r.s.addUser(copyUser(u))), nil
}

func (r *fakeUsersRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyUser(u), nil
}

func (r *fakeUsersRepo) find(match func(*models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *models.User
	for _, u := range r.s.users {
		if match(u) && (found == nil || u.Verified) {
			found = u
		}
	}
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return copyUser(found), nil
}

func (r *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *fakeUsersRepo) GetVerifiedByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email && u.Verified })
}

func (r *fakeUsersRepo) GetByPatreonID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.PatreonID != nil && *u.PatreonID == id })
}

func (r *fakeUsersRepo) update(id int64, fn func(u *models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

func (r *fakeUsersRepo) UpdateRegistration(_ context.Context, in *models.User) error {
	return r.update(in.ID, func(u *models.User) {
		u.UserName = in.UserName
		u.PasswordHash = in.PasswordHash
		u.VerificationCode = in.VerificationCode
		u.VerificationCodeExpiration = in.VerificationCodeExpiration
	})
}

func (r *fakeUsersRepo) Verify(_ context.Context, code string, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if !u.Verified && u.VerificationCode != nil && *u.VerificationCode == code &&
			!u.VerificationCodeExpiration.Before(now) {
			u.Verified = true
			u.VerificationCode = nil
			u.VerificationCodeExpiration = nil
			return u.ID, nil
		}
	}
	return 0, common.ErrorNotFound
}

func (r *fakeUsersRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	return r.update(id, func(u *models.User) { u.PasswordHash = hash })
}

func setTokens(u *models.User, tok users.Tokens) {
	at, rt, exp := tok.AccessToken, tok.RefreshToken, tok.Expiry
	u.PatreonAccessToken, u.PatreonRefreshToken, u.PatreonAccessTokenExpiry = &at, &rt, &exp
}

func (r *fakeUsersRepo) LinkPatreon(_ context.Context, id int64, patreonID string, tok users.Tokens) error {
	return r.update(id, func(u *models.User) {
		u.PatreonID = &patreonID
		setTokens(u, tok)
	})
}

func (r *fakeUsersRepo) UpdatePatreonTokens(_ context.Context, id int64, tok users.Tokens) error {
	return r.update(id, func(u *models.User) { setTokens(u, tok) })
}

func (r *fakeUsersRepo) UpdateMembership(_ context.Context, id int64, m users.Membership) error {
	return r.update(id, func(u *models.User) {
		u.PatreonMember = m.Member
		if m.LastPayment != nil {
			lp := *m.LastPayment
			u.PatreonLastPayment = &lp
		}
		lc := m.LastChecked
		u.PatreonLastChecked = &lc
	})
}

func (r *fakeUsersRepo) ListDueForSync(_ context.Context, before time.Time) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.User
	for _, u := range r.s.users {
		if u.PatreonRefreshToken != nil && (u.PatreonLastChecked == nil || u.PatreonLastChecked.Before(before)) {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- tracks ---

type fakeTracksRepo struct{ s *memStore }

func (r *fakeTracksRepo) Create(_ context.Context, t *models.Track) (*models.Track, error) {
	if r.s.trackCreateErr != nil {
		return nil, r.s.trackCreateErr
	}
	cp := *t
	r.s.addTrack(&cp)
	return &cp, nil
}

func (r *fakeTracksRepo) Get(_ context.Context, ownerID, id int64) (*models.Track, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tracks[id]
	if !ok || t.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTracksRepo) Delete(_ context.Context, ownerID, id int64) error {
	if r.s.trackDeleteErr != nil {
		return r.s.trackDeleteErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tracks[id]
	if !ok || t.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	delete(r.s.tracks, id)
	for k := range r.s.members {
		if k[1] == id {
			delete(r.s.members, k)
		}
	}
	return nil
}

func (r *fakeTracksRepo) SaveSource(_ context.Context, id int64, url string, exp time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.saveSources++
	if r.s.saveSourceErr != nil {
		return r.s.saveSourceErr
	}
	t, ok := r.s.tracks[id]
	if !ok {
		return common.ErrorNotFound
	}
	t.SetSource(url, exp)
	return nil
}

func (r *fakeTracksRepo) Sizes(_ context.Context, ownerID int64) ([]int64, error) {
	if r.s.sizesErr != nil {
		return nil, r.s.sizesErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []int64
	for _, t := range r.s.tracks {
		if t.OwnerID == ownerID {
			out = append(out, t.Size)
		}
	}
	return out, nil
}

func (r *fakeTracksRepo) ListInPlaylists(_ context.Context, ownerID int64) ([]tracks.PlaylistEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ps := append([]*models.Playlist(nil), r.s.playlists...)
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })

	loaded := map[int64]*models.Track{}
	var out []tracks.PlaylistEntry
	for _, p := range ps {
		if p.OwnerID != ownerID {
			continue
		}
		var ids []int64
		for k := range r.s.members {
			if k[0] == p.ID {
				ids = append(ids, k[1])
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			t, ok := loaded[id]
			if !ok {
				cp := *r.s.tracks[id]
				t = &cp
				loaded[id] = t
			}
			out = append(out, tracks.PlaylistEntry{Playlist: p.Name, Track: t})
		}
	}
	return out, nil
}

func (r *fakeTracksRepo) PlaylistNames(_ context.Context, trackID int64) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []string
	for _, p := range r.s.playlists {
		if r.s.members[[2]int64{p.ID, trackID}] {
			out = append(out, p.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeTracksRepo) ObjectKeys(_ context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []string
	for _, t := range r.s.tracks {
		out = append(out, t.ObjectKey)
	}
	sort.Strings(out)
	return out, nil
}

// --- playlists ---

type fakePlaylistsRepo struct{ s *memStore }

func (r *fakePlaylistsRepo) ListByOwner(_ context.Context, ownerID int64) ([]*models.Playlist, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Playlist
	for _, p := range r.s.playlists {
		if p.OwnerID == ownerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePlaylistsRepo) Create(_ context.Context, ownerID int64, name string) (*models.Playlist, error) {
	r.s.mu.Lock()
	for _, p := range r.s.playlists {
		if p.OwnerID == ownerID && p.Name == name {
			r.s.mu.Unlock()
			cp := *p
			return &cp, nil
		}
	}
	r.s.playlistCreates++
	r.s.mu.Unlock()
	return r.s.addPlaylist(ownerID, name), nil
}

func (r *fakePlaylistsRepo) AddTrack(_ context.Context, playlistID, trackID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.members[[2]int64{playlistID, trackID}] = true
	return nil
}

// --- repository manager ---

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return &fakeUsersRepo{m.s} }
func (m *fakeRepoManager) Tracks(dbx.DBTX) tracks.Repository            { return &fakeTracksRepo{m.s} }
func (m *fakeRepoManager) Playlists(dbx.DBTX) playlists.Repository      { return &fakePlaylistsRepo{m.s} }

// --- object store ---

type fakeGateway struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string

	putCalls     int
	deleteCalls  int
	presignCalls int

	putErr     error
	deleteErr  error
	presignErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: map[string][]byte{}, types: map[string]string{}}
}

func (g *fakeGateway) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	g.mu.Lock()
	g.putCalls++
	err := g.putErr
	g.mu.Unlock()
	if err != nil {
		return err
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return fmt.Errorf("short body: %d of %d", len(b), size)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[key] = b
	g.types[key] = contentType
	return nil
}

func (g *fakeGateway) Delete(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteCalls++
	if g.deleteErr != nil {
		return g.deleteErr
	}
	delete(g.objects, key)
	return nil
}

func (g *fakeGateway) Presign(_ context.Context, key string, dir objectstore.Direction, ttl time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.presignCalls++
	if g.presignErr != nil {
		return "", g.presignErr
	}
	return fmt.Sprintf("https://store.test/%s?dir=%s&n=%d", key, dir, g.presignCalls), nil
}

func (g *fakeGateway) List(_ context.Context, prefix string) ([]objectstore.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []objectstore.Object
	for k, b := range g.objects {
		if bytes.HasPrefix([]byte(k), []byte(prefix)) {
			out = append(out, objectstore.Object{Key: k, Size: int64(len(b))})
		}
	}
	return out, nil
}

var _ objectstore.Gateway = (*fakeGateway)(nil)

// --- mail ---

type fakeMailer struct {
	sent []*mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg *mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// --- patreon ---

type fakeProvider struct {
	exchangeTok *oauth2.Token
	exchangeErr error

	identities  map[string]*patreon.Identity // by access token
	refreshed   *oauth2.Token
	identityErr error
	calls       int
}

func (p *fakeProvider) Exchange(context.Context, string) (*oauth2.Token, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.exchangeTok, nil
}

func (p *fakeProvider) Identity(_ context.Context, tok *oauth2.Token) (*patreon.Identity, *oauth2.Token, error) {
	p.calls++
	if p.identityErr != nil {
		return nil, nil, p.identityErr
	}
	id, ok := p.identities[tok.AccessToken]
	if !ok {
		return nil, nil, errors.New("401 unauthorized")
	}
	if p.refreshed != nil {
		return id, p.refreshed, nil
	}
	return id, tok, nil
}

func nopLogger() logging.Logger { return logging.NewNop() }

func strPtr(s string) *string { return &s }
