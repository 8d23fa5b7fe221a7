// Package reconcile finds stored track objects that no track row refers to.
// They are left behind when an object is stored but recording its track
// fails.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/hoot/internal/logging"
	"github.com/dmitrijs2005/hoot/internal/server/objectstore"
)

// TrackPrefix is the prefix shared by every track object key.
const TrackPrefix = "user_"

// DefaultMinAge keeps objects of uploads that may still be in flight out of
// the report.
const DefaultMinAge = time.Hour

type keySource interface {
	ObjectKeys(ctx context.Context) ([]string, error)
}

// Report is the outcome of one pass.
type Report struct {
	Scanned    int
	Referenced int
	Skipped    int
	Orphans    []objectstore.Object
	Deleted    int
	Failed     int
}

// OrphanedBytes is the storage held by the orphans.
func (r *Report) OrphanedBytes() int64 {
	var n int64
	for _, o := range r.Orphans {
		n += o.Size
	}
	return n
}

type Reconciler struct {
	keys   keySource
	store  objectstore.Gateway
	logger logging.Logger
	minAge time.Duration
	now    func() time.Time
}

func New(keys keySource, store objectstore.Gateway, minAge time.Duration, logger logging.Logger) *Reconciler {
	return &Reconciler{
		keys:   keys,
		store:  store,
		logger: logger.With("module", "reconcile"),
		minAge: minAge,
		now:    time.Now,
	}
}

// Run lists the bucket, then the referenced keys, and reports every object
// older than the minimum age that is not referenced. With remove set the
// orphans are deleted; a failed delete is counted and the pass continues.
func (r *Reconciler) Run(ctx context.Context, remove bool) (*Report, error) {
	// Listing the bucket first means a track recorded during the pass is
	// still seen as referenced.
	objects, err := r.store.List(ctx, TrackPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}

	keys, err := r.keys.ObjectKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing track keys: %w", err)
	}
	referenced := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		referenced[k] = struct{}{}
	}

	cutoff := r.now().Add(-r.minAge)
	rep := &Report{Scanned: len(objects)}
	for _, o := range objects {
		if _, ok := referenced[o.Key]; ok {
			rep.Referenced++
			continue
		}
		if !o.LastModified.IsZero() && o.LastModified.After(cutoff) {
			rep.Skipped++
			continue
		}
		rep.Orphans = append(rep.Orphans, o)
	}
	sort.Slice(rep.Orphans, func(i, j int) bool { return rep.Orphans[i].Key < rep.Orphans[j].Key })

	for _, o := range rep.Orphans {
		r.logger.Info(ctx, "orphaned object", "key", o.Key, "size", o.Size)
		if !remove {
			continue
		}
		if err := r.store.Delete(ctx, o.Key); err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			r.logger.Warn(ctx, "deleting orphaned object failed", "key", o.Key, "error", err)
			rep.Failed++
			continue
		}
		rep.Deleted++
	}

	return rep, nil
}
