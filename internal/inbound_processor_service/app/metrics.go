package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inboundSMSReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smsbridge",
			Name:      "inbound_messages_received_total",
			Help:      "Total number of inbound SMS deliveries accepted for processing.",
		},
		[]string{"provider", "source"}, // source: "webhook", "poll", "simulate"
	)

	inboundSMSProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smsbridge",
			Name:      "inbound_messages_processed_total",
			Help:      "Total number of inbound SMS messages by outcome.",
		},
		[]string{"provider", "status"}, // status: "stored", "filtered", "error_extraction", "error_storage"
	)

	inboundSMSProcessingDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "smsbridge",
			Name:      "inbound_message_processing_duration_seconds",
			Help:      "Duration of inbound SMS message processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	keywordMatchesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smsbridge",
			Name:      "keyword_matches_total",
			Help:      "Total number of keyword matches on inbound messages.",
		},
		[]string{"instance"},
	)

	eventPublishErrorsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smsbridge",
			Name:      "event_publish_errors_total",
			Help:      "Total number of domain events that could not be published.",
		},
		[]string{"event_type"},
	)

	pollCyclesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smsbridge",
			Name:      "poll_cycles_total",
			Help:      "Total number of provider poll cycles by result.",
		},
		[]string{"instance", "result"}, // result: "ok", "error"
	)

	dedupSkipsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smsbridge",
			Name:      "poll_duplicates_skipped_total",
			Help:      "Total number of polled messages skipped because they were already seen.",
		},
		[]string{"instance"},
	)

	historyPrunedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "smsbridge",
			Name:      "history_entries_pruned_total",
			Help:      "Total number of history entries removed by retention pruning.",
		},
	)

	outboundSMSCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smsbridge",
			Name:      "outbound_messages_total",
			Help:      "Total number of outbound SMS send attempts by result.",
		},
		[]string{"provider", "result"},
	)

	instancesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "smsbridge",
			Name:      "instances",
			Help:      "Number of configured instances by readiness.",
		},
		[]string{"state"}, // state: "ready", "pending"
	)
)
