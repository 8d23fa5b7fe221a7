package tracks

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, track *models.Track) (*models.Track, error) {
	query :=
		`INSERT INTO tracks (owner_id, name, size, object_key)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query, track.OwnerID, track.Name, track.Size, track.ObjectKey).Scan(&track.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return track, nil
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID, id int64) (*models.Track, error) {
	query :=
		`SELECT id, owner_id, name, size, object_key, source, source_expiration FROM tracks
		 WHERE id = $1 AND owner_id = $2`

	t := &models.Track{}
	err := r.db.QueryRowContext(ctx, query, id, ownerID).
		Scan(&t.ID, &t.OwnerID, &t.Name, &t.Size, &t.ObjectKey, &t.Source, &t.SourceExpiration)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	normalizeExpiration(t)
	return t, nil
}

// Delete removes the row; join rows go with it through the cascade.
func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = $1 AND owner_id = $2`, id, ownerID)
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

// SaveSource writes the url and its expiration in one statement.
func (r *PostgresRepository) SaveSource(ctx context.Context, id int64, url string, expiration time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tracks SET source = $2, source_expiration = $3 WHERE id = $1`, id, url, expiration.UTC())
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

func (r *PostgresRepository) Sizes(ctx context.Context, ownerID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT size FROM tracks WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	sizes := make([]int64, 0)
	for rows.Next() {
		var s int64
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		sizes = append(sizes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sizes, nil
}

func (r *PostgresRepository) ListInPlaylists(ctx context.Context, ownerID int64) ([]PlaylistEntry, error) {
	query :=
		`SELECT p.name, t.id, t.owner_id, t.name, t.size, t.object_key, t.source, t.source_expiration
		 FROM playlists p
		 JOIN playlist_tracks pt ON pt.playlist_id = p.id
		 JOIN tracks t ON t.id = pt.track_id
		 WHERE p.owner_id = $1
		 ORDER BY p.name, t.id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	// a track in several playlists is returned once per playlist; share the pointer
	seen := make(map[int64]*models.Track)
	var out []PlaylistEntry
	for rows.Next() {
		var name string
		t := &models.Track{}
		if err := rows.Scan(&name, &t.ID, &t.OwnerID, &t.Name, &t.Size, &t.ObjectKey, &t.Source, &t.SourceExpiration); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if prev, ok := seen[t.ID]; ok {
			t = prev
		} else {
			normalizeExpiration(t)
			seen[t.ID] = t
		}
		out = append(out, PlaylistEntry{Playlist: name, Track: t})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) PlaylistNames(ctx context.Context, trackID int64) ([]string, error) {
	query :=
		`SELECT p.name FROM playlists p
		 JOIN playlist_tracks pt ON pt.playlist_id = p.id
		 WHERE pt.track_id = $1
		 ORDER BY p.name`

	return r.queryStrings(ctx, query, trackID)
}

func (r *PostgresRepository) ObjectKeys(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, `SELECT object_key FROM tracks`)
}

func (r *PostgresRepository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func normalizeExpiration(t *models.Track) {
	if t.SourceExpiration != nil {
		exp := t.SourceExpiration.UTC()
		t.SourceExpiration = &exp
	}
}
