package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/logging"
	"github.com/dmitrijs2005/hoot/internal/server/config"
	"github.com/dmitrijs2005/hoot/internal/server/content"
	"github.com/dmitrijs2005/hoot/internal/server/models"
	"github.com/dmitrijs2005/hoot/internal/server/objectstore"
	"github.com/dmitrijs2005/hoot/internal/server/quota"
	"github.com/google/uuid"
)

const maxTrackNameLength = 64

// CreateTrackRequest carries either an uploaded Body with its Filename or a
// SourceURL to fetch. Body wins when both are set.
type CreateTrackRequest struct {
	Name      string
	Playlists []string

	Body     io.Reader
	Filename string

	SourceURL string
}

// TrackService creates, reads and deletes a user's tracks.
type TrackService struct {
	catalog *CatalogService
	sources *SourceResolver
	store   objectstore.Gateway
	quota   quota.Policy
	logger  logging.Logger

	client       *http.Client
	fetchTimeout time.Duration
	maxSize      int64
	tempDir      string

	newObjectID func() string
}

func NewTrackService(catalog *CatalogService, sources *SourceResolver, store objectstore.Gateway, cfg *config.Config, logger logging.Logger) *TrackService {
	return &TrackService{
		catalog:      catalog,
		sources:      sources,
		store:        store,
		quota:        quota.Policy{Base: cfg.BaseQuota, Elevated: cfg.ElevatedQuota},
		logger:       logger,
		client:       newFetchClient(cfg.RemoteFetchTimeout),
		fetchTimeout: cfg.RemoteFetchTimeout,
		maxSize:      cfg.MaxUploadSize,
		newObjectID:  uuid.NewString,
	}
}

// newFetchClient bounds connecting and waiting for headers; body reads are
// bounded separately by stallGuard so large files are not cut off.
func newFetchClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
		},
	}
}

// ObjectKey namespaces a stored track under its owner.
func ObjectKey(ownerID int64, id, ext string) string {
	return fmt.Sprintf("user_%d/track_%s.%s", ownerID, id, ext)
}

// Create validates the content, checks the owner's quota, stores the object
// and only then records the track. The returned track has no source yet.
func (s *TrackService) Create(ctx context.Context, user *models.User, req CreateTrackRequest) (*models.Track, error) {
	track, err := s.create(ctx, user, req)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrUploadFailed):
			trackUploadsTotal.WithLabelValues(uploadStoreFailed).Inc()
		case errors.Is(err, common.ErrPersistFailed):
			trackUploadsTotal.WithLabelValues(uploadPersistFailed).Inc()
		default:
			trackUploadsTotal.WithLabelValues(uploadRejected).Inc()
		}
		return nil, err
	}
	trackUploadsTotal.WithLabelValues(uploadCreated).Inc()
	return track, nil
}

func (s *TrackService) create(ctx context.Context, user *models.User, req CreateTrackRequest) (*models.Track, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxTrackNameLength {
		return nil, common.ErrInvalidRequest
	}
	playlists, err := playlistNames(req.Playlists)
	if err != nil {
		return nil, err
	}

	var upload *content.Upload

	switch {
	case req.Body != nil:
		upload, err = s.validateBody(ctx, req.Body, req.Filename)
	case req.SourceURL != "":
		upload, err = s.fetch(ctx, req.SourceURL)
	default:
		return nil, common.ErrNoFileProvided
	}
	if err != nil {
		return nil, err
	}
	defer upload.Close()

	sizes, err := s.catalog.Sizes(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("error reading storage usage: %w", err)
	}
	if err := s.quota.Check(user, sizes, upload.Size()); err != nil {
		return nil, err
	}

	key := ObjectKey(user.ID, s.newObjectID(), upload.Extension)

	r, err := upload.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUploadFailed, err)
	}
	if err := s.store.Put(ctx, key, r, upload.Size(), upload.ContentType); err != nil {
		s.logger.Error(ctx, "object upload failed", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrUploadFailed, err)
	}
	trackUploadBytesTotal.Add(float64(upload.Size()))

	track, err := s.catalog.Create(ctx, NewTrack{
		OwnerID:   user.ID,
		Name:      name,
		Size:      upload.Size(),
		ObjectKey: key,
		Playlists: playlists,
	})
	if err != nil {
		orphanedObjectsTotal.Inc()
		s.logger.Error(ctx, "track record not created, stored object is orphaned",
			"event", "orphaned_object", "key", key, "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrPersistFailed, err)
	}

	s.logger.Info(ctx, "track created", "track_id", track.ID, "user_id", user.ID, "size", track.Size)
	return track, nil
}

func (s *TrackService) validateBody(ctx context.Context, body io.Reader, filename string) (*content.Upload, error) {
	name, err := content.ResolveFilename(filename, "", "")
	if err != nil {
		return nil, err
	}
	return content.Validate(ctx, body, name, s.tempDir, s.maxSize)
}

// fetch downloads rawURL into a validated upload. The transfer stops as
// soon as the size limit is crossed.
func (s *TrackService) fetch(ctx context.Context, rawURL string) (*content.Upload, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, common.ErrInvalidRequest
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDownloadFailed, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", common.ErrDownloadFailed, resp.StatusCode)
	}
	if resp.ContentLength > s.maxSize {
		return nil, common.ErrFileTooLarge
	}

	name, err := content.ResolveFilename("", rawURL, resp.Header.Get("Content-Disposition"))
	if err != nil {
		return nil, err
	}

	body := newStallGuard(resp.Body, s.fetchTimeout, cancel)
	defer body.stop()

	upload, err := content.Validate(ctx, body, name, s.tempDir, s.maxSize)
	if err != nil {
		if errors.Is(err, common.ErrFileTooLarge) || errors.Is(err, common.ErrInvalidFileType) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrDownloadFailed, err)
	}
	return upload, nil
}

// stallGuard cancels a transfer when no bytes arrive for d. A zero d
// disables it.
type stallGuard struct {
	r     io.Reader
	d     time.Duration
	timer *time.Timer
}

func newStallGuard(r io.Reader, d time.Duration, cancel context.CancelFunc) *stallGuard {
	g := &stallGuard{r: r, d: d}
	if d > 0 {
		g.timer = time.AfterFunc(d, cancel)
	}
	return g
}

func (g *stallGuard) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	if n > 0 && g.timer != nil {
		g.timer.Reset(g.d)
	}
	return n, err
}

func (g *stallGuard) stop() {
	if g.timer != nil {
		g.timer.Stop()
	}
}

// Get returns one track with a download URL, renewing it when expired.
func (s *TrackService) Get(ctx context.Context, ownerID, id int64) (*models.Track, error) {
	track, err := s.catalog.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	s.attachSource(ctx, track, true)
	return track, nil
}

// ListByPlaylist returns the owner's tracks grouped by playlist. Cached
// download URLs are included while valid but never renewed here.
func (s *TrackService) ListByPlaylist(ctx context.Context, ownerID int64) (map[string][]*models.Track, error) {
	lists, err := s.catalog.ListByPlaylist(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, tracks := range lists {
		for _, t := range tracks {
			s.attachSource(ctx, t, false)
		}
	}
	return lists, nil
}

// attachSource leaves only a usable download URL on t.
func (s *TrackService) attachSource(ctx context.Context, t *models.Track, forceRenew bool) {
	if url, _ := s.sources.Resolve(ctx, t, forceRenew); url == nil {
		t.Source, t.SourceExpiration = nil, nil
	}
}

// Delete removes the track's object and then its record.
func (s *TrackService) Delete(ctx context.Context, ownerID, id int64) error {
	err := s.catalog.Delete(ctx, ownerID, id)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Error(ctx, "track delete failed", "track_id", id, "user_id", ownerID, "error", err)
	}
	return err
}
