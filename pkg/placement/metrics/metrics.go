// Package metrics exposes Prometheus collectors for the chat server.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/placement/pkg/placement/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const namespace = "placement"

// Metrics owns a private Prometheus registry
type Metrics struct {
	Registry *prometheus.Registry

	requests          *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	messagesSent      *prometheus.CounterVec
	reactions         *prometheus.CounterVec
	loginsLimited     prometheus.Counter
	attachmentsPurged prometheus.Counter
}

// New registers the runtime collectors, request metrics and chat counters.
// db may be nil, in which case the table gauges are skipped.
func New(db *gorm.DB) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Chat messages sent, by kind (text or file).",
		}, []string{"kind"}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaction_toggles_total",
			Help:      "Reaction toggles, by action (added or removed).",
		}, []string{"action"}),
		loginsLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_rate_limited_total",
			Help:      "Login attempts rejected by the rate limiter.",
		}),
		attachmentsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_purged_total",
			Help:      "Stored attachments removed by the retention job.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.messagesSent,
		m.reactions,
		m.loginsLimited,
		m.attachmentsPurged,
	)

	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			reg.MustRegister(collectors.NewDBStatsCollector(sqlDB, "placement"))
		}
		reg.MustRegister(
			tableGauge(db, "users", "Registered accounts.", &models.User{}, nil),
			tableGauge(db, "groups", "Chat groups.", &models.Group{}, nil),
			tableGauge(db, "messages", "Messages that are not deleted.", &models.Message{}, func(tx *gorm.DB) *gorm.DB {
				return tx.Where("is_deleted = ?", false)
			}),
			tableGauge(db, "open_drives", "Drives accepting applications.", &models.Drive{}, func(tx *gorm.DB) *gorm.DB {
				return tx.Where("status = ?", models.DriveStatusOpen)
			}),
		)
	}

	return m
}

func tableGauge(db *gorm.DB, name, help string, model interface{}, scope func(*gorm.DB) *gorm.DB) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		func() float64 {
			q := db.Model(model)
			if scope != nil {
				q = scope(q)
			}
			var n int64
			q.Count(&n)
			return float64(n)
		},
	)
}

// Middleware records request counts and latency. Unmatched routes share one label.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}

// MessageSent counts a sent message of the given kind
func (m *Metrics) MessageSent(kind string) {
	m.messagesSent.WithLabelValues(kind).Inc()
}

// ReactionToggled counts a reaction being added or removed
func (m *Metrics) ReactionToggled(added bool) {
	action := "removed"
	if added {
		action = "added"
	}
	m.reactions.WithLabelValues(action).Inc()
}

// LoginLimited counts a login rejected by the rate limiter
func (m *Metrics) LoginLimited() {
	m.loginsLimited.Inc()
}

// AttachmentsPurged counts files removed by retention
func (m *Metrics) AttachmentsPurged(n int) {
	m.attachmentsPurged.Add(float64(n))
}
