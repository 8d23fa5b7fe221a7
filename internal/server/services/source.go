package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/hoot/internal/logging"
	"github.com/dmitrijs2005/hoot/internal/server/models"
	"github.com/dmitrijs2005/hoot/internal/server/objectstore"
)

// SourceResolver hands out temporary download URLs for tracks, reusing the
// cached one until it expires.
type SourceResolver struct {
	store  objectstore.Gateway
	saver  sourceStore
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time
}

func NewSourceResolver(store objectstore.Gateway, saver sourceStore, ttl time.Duration, logger logging.Logger) *SourceResolver {
	return &SourceResolver{
		store:  store,
		saver:  saver,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Resolve returns the track's download URL and its expiration.
//
// A cached URL expiring after now is returned as is. Otherwise, with
// forceRenew, a new URL is presigned, stored on track and persisted; without
// it, or when presigning fails, nothing is returned and track is unchanged.
func (r *SourceResolver) Resolve(ctx context.Context, track *models.Track, forceRenew bool) (*string, *time.Time) {
	now := r.now()

	if track.HasSource() && track.SourceExpiration.After(now) {
		return track.Source, track.SourceExpiration
	}
	if !forceRenew {
		return nil, nil
	}

	url, err := r.store.Presign(ctx, track.ObjectKey, objectstore.Download, r.ttl)
	if err != nil {
		sourcePresignsTotal.WithLabelValues("error").Inc()
		r.logger.Warn(ctx, "presign failed", "track_id", track.ID, "error", err)
		return nil, nil
	}
	sourcePresignsTotal.WithLabelValues("ok").Inc()

	track.SetSource(url, now.Add(r.ttl))

	if err := r.saver.SaveSource(ctx, track); err != nil {
		// The URL is still valid; it is presigned again next time.
		r.logger.Warn(ctx, "saving source failed", "track_id", track.ID, "error", err)
	}

	return track.Source, track.SourceExpiration
}
