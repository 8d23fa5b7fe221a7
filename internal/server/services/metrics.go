package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload outcomes used as the "result" label.
const (
	uploadCreated       = "created"
	uploadRejected      = "rejected"
	uploadStoreFailed   = "upload_failed"
	uploadPersistFailed = "persist_failed"
)

var (
	trackUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hoot_track_uploads_total",
		Help: "Track create attempts by result",
	}, []string{"result"})

	trackUploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hoot_track_upload_bytes_total",
		Help: "Bytes written to the object store for new tracks",
	})

	// Objects written to the store whose track row could not be created.
	orphanedObjectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hoot_orphaned_objects_total",
		Help: "Stored objects left without a track record",
	})

	sourcePresignsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hoot_source_presigns_total",
		Help: "Download URL presign attempts by result",
	}, []string{"result"})

	subscriptionSyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hoot_subscription_syncs_total",
		Help: "Subscription state refreshes by result",
	}, []string{"result"})
)
