// Package metrics defines the bot's prometheus counters.
// They are served by the callback server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts outbound requests, including retries.
	HTTPRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wanzi_http_requests_total",
		Help: "Outbound HTTP requests issued, retries included.",
	})

	// HTTPRetries counts attempts that were retried (status or app code).
	HTTPRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wanzi_http_retries_total",
		Help: "Outbound HTTP attempts retried on status or application code.",
	})

	// WebhookEvents counts inbound Feishu callback events accepted.
	WebhookEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wanzi_webhook_events_total",
		Help: "Feishu callback events accepted for processing.",
	})

	// CommandReplies counts chat command replies sent.
	CommandReplies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wanzi_command_replies_total",
		Help: "Chat command replies sent back to users.",
	})

	// Notifications counts push notifications sent to the channel.
	Notifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wanzi_notifications_total",
		Help: "Push notifications sent to the configured channel.",
	})
)
