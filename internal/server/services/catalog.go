package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/dbx"
	"github.com/dmitrijs2005/hoot/internal/server/models"
	"github.com/dmitrijs2005/hoot/internal/server/objectstore"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/repomanager"
)

// NewTrack describes a stored object about to be recorded.
type NewTrack struct {
	OwnerID   int64
	Name      string
	Size      int64
	ObjectKey string
	Playlists []string
}

// CatalogService keeps track rows, playlists and their memberships
// consistent with each other and with the object store.
type CatalogService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       objectstore.Gateway
}

func NewCatalogService(db *sql.DB, m repomanager.RepositoryManager, store objectstore.Gateway) *CatalogService {
	return &CatalogService{db: db, repomanager: m, store: store}
}

const maxPlaylistNameLength = 64

// playlistNames normalises requested playlist names and rejects any the
// playlists table cannot hold.
func playlistNames(names []string) ([]string, error) {
	out := uniqueNames(names)
	for _, n := range out {
		if utf8.RuneCountInString(n) > maxPlaylistNameLength {
			return nil, fmt.Errorf("%w: playlist name longer than %d characters", common.ErrInvalidRequest, maxPlaylistNameLength)
		}
	}
	return out, nil
}

// uniqueNames drops blanks and repeats, keeping first-seen order.
func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Create inserts the track, any of the owner's playlists that do not exist
// yet, and one membership per playlist, all in one transaction.
func (s *CatalogService) Create(ctx context.Context, in NewTrack) (*models.Track, error) {
	names, err := playlistNames(in.Playlists)
	if err != nil {
		return nil, err
	}

	return dbx.InTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Track, error) {
		playlistRepo := s.repomanager.Playlists(tx)
		trackRepo := s.repomanager.Tracks(tx)

		existing, err := playlistRepo.ListByOwner(ctx, in.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("error listing playlists: %w", err)
		}
		ids := make(map[string]int64, len(existing))
		for _, p := range existing {
			ids[p.Name] = p.ID
		}

		for _, name := range names {
			if _, ok := ids[name]; ok {
				continue
			}
			p, err := playlistRepo.Create(ctx, in.OwnerID, name)
			if err != nil {
				return nil, fmt.Errorf("error creating playlist %q: %w", name, err)
			}
			ids[name] = p.ID
		}

		track, err := trackRepo.Create(ctx, &models.Track{
			OwnerID:   in.OwnerID,
			Name:      in.Name,
			Size:      in.Size,
			ObjectKey: in.ObjectKey,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating track: %w", err)
		}

		for _, name := range names {
			if err := playlistRepo.AddTrack(ctx, ids[name], track.ID); err != nil {
				return nil, fmt.Errorf("error adding track to playlist %q: %w", name, err)
			}
		}

		track.Playlists = names
		return track, nil
	})
}

// Get loads one of the owner's tracks with its playlist names.
func (s *CatalogService) Get(ctx context.Context, ownerID, id int64) (*models.Track, error) {
	repo := s.repomanager.Tracks(s.db)

	track, err := repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	names, err := repo.PlaylistNames(ctx, track.ID)
	if err != nil {
		return nil, err
	}
	track.Playlists = names

	return track, nil
}

// ListByPlaylist groups the owner's tracks by playlist name. Every playlist
// is present, an empty one with no tracks. Tracks that belong to no playlist
// are not listed. A track in several playlists is the same value under each
// of them.
func (s *CatalogService) ListByPlaylist(ctx context.Context, ownerID int64) (map[string][]*models.Track, error) {
	playlists, err := s.repomanager.Playlists(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error listing playlists: %w", err)
	}
	entries, err := s.repomanager.Tracks(s.db).ListInPlaylists(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]*models.Track, len(playlists))
	for _, p := range playlists {
		out[p.Name] = []*models.Track{}
	}
	for _, e := range entries {
		out[e.Playlist] = append(out[e.Playlist], e.Track)
	}
	return out, nil
}

// Delete removes the stored object first and then the row, so a failed
// object deletion leaves the track listed and the delete can be retried.
func (s *CatalogService) Delete(ctx context.Context, ownerID, id int64) error {
	repo := s.repomanager.Tracks(s.db)

	track, err := repo.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, track.ObjectKey); err != nil {
		return fmt.Errorf("%w: %w", common.ErrDeleteFailed, err)
	}

	if err := repo.Delete(ctx, ownerID, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", common.ErrDeleteFailed, err)
	}
	return nil
}

// SaveSource persists the cached download URL of track.
func (s *CatalogService) SaveSource(ctx context.Context, track *models.Track) error {
	if !track.HasSource() {
		return nil
	}
	return s.repomanager.Tracks(s.db).SaveSource(ctx, track.ID, *track.Source, *track.SourceExpiration)
}

// Sizes returns the sizes of every track the owner has.
func (s *CatalogService) Sizes(ctx context.Context, ownerID int64) ([]int64, error) {
	return s.repomanager.Tracks(s.db).Sizes(ctx, ownerID)
}

// sourceStore is the part of CatalogService the resolver writes through.
type sourceStore interface {
	SaveSource(ctx context.Context, track *models.Track) error
}

var _ sourceStore = (*CatalogService)(nil)
