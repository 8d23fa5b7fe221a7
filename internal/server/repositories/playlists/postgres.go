package playlists

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/hoot/internal/dbx"
	"github.com/dmitrijs2005/hoot/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Playlist, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name FROM playlists WHERE owner_id = $1 ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Playlist
	for rows.Next() {
		p := &models.Playlist{}
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Create relies on the (owner_id, name) unique constraint, so two requests
// racing to create the same playlist end up with the same row.
func (r *PostgresRepository) Create(ctx context.Context, ownerID int64, name string) (*models.Playlist, error) {
	query :=
		`INSERT INTO playlists (owner_id, name)
		 VALUES ($1, $2)
		 ON CONFLICT (owner_id, name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`

	p := &models.Playlist{OwnerID: ownerID, Name: name}
	if err := r.db.QueryRowContext(ctx, query, ownerID, name).Scan(&p.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) AddTrack(ctx context.Context, playlistID, trackID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO playlist_tracks (playlist_id, track_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		playlistID, trackID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
