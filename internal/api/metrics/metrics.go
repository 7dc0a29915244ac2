// Package metrics defines and registers all custom Prometheus metrics for the
// account service. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry at package
// initialisation through promauto and exposed on /metrics by the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accounts"

// ── Account lifecycle metrics ─────────────────────────────────────────────────

// RegistrationsTotal counts registration attempts.
// Label:
//   - result: "created", "conflict", "invalid", "forbidden" or "error"
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registration attempts, by result.",
	},
	[]string{"result"},
)

// LoginsTotal counts authentication attempts.
// Label:
//   - result: "success", "invalid", "invalid_credentials", "disabled", "unconfirmed" or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of authentication attempts, by result.",
	},
	[]string{"result"},
)

// ConfirmationsTotal counts e-mail confirmation attempts.
// Label:
//   - result: "confirmed", "expired", "invalid", "already_confirmed" or "error"
var ConfirmationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "confirmations_total",
		Help:      "Total number of e-mail confirmation attempts, by result.",
	},
	[]string{"result"},
)

// AccessDeniedTotal counts requests rejected by the access control layer.
// Label:
//   - reason: "unauthenticated", "forbidden" or "self_target"
var AccessDeniedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_denied_total",
		Help:      "Total number of requests rejected by access control.",
	},
	[]string{"reason"},
)

// ── Mail metrics ──────────────────────────────────────────────────────────────

// MailEnqueuedTotal counts enqueue decisions.
// Labels:
//   - kind: "confirmation" or "welcome"
//   - result: "queued" or "dropped" (worker channel full or dispatcher stopped)
var MailEnqueuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mail_enqueued_total",
		Help:      "Total number of outbound mails offered to the dispatcher.",
	},
	[]string{"kind", "result"},
)

// MailDeliveriesTotal counts delivery outcomes.
// Labels:
//   - kind: "confirmation" or "welcome"
//   - result: "sent", "failed", "duplicate" or "aborted"
var MailDeliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mail_deliveries_total",
		Help:      "Total number of outbound mail deliveries, by result.",
	},
	[]string{"kind", "result"},
)

// MailQueueDepth tracks the number of mails waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var MailQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mail_queue_depth",
		Help:      "Current number of mails pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// MailDeliveryDuration measures how long a single SMTP hand-off takes.
// Label:
//   - result: "sent" or "failed"
var MailDeliveryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "mail_delivery_duration_seconds",
		Help:      "Duration of a mail hand-off to the transport.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)
