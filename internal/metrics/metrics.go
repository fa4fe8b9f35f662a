// Package metrics holds the Prometheus counters exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RSVPSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wedding",
		Name:      "rsvp_submissions_total",
		Help:      "Stored RSVP responses by status.",
	}, []string{"status"})

	UploadTargets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wedding",
		Name:      "upload_targets_total",
		Help:      "Upload target requests by result.",
	}, []string{"result"})

	FeedChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wedding",
		Name:      "feed_changes_total",
		Help:      "Change notifications applied to the feed, by table and action.",
	}, []string{"table", "action"})
)

func init() {
	prometheus.MustRegister(RSVPSubmissions, UploadTargets, FeedChanges)
}
