// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_active",
		Help: "Currently connected clients",
	})

	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_calls_active",
		Help: "Currently live calls",
	})

	CallsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_calls_created_total",
		Help: "Calls created since start",
	})

	SignalsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_signals_relayed_total",
		Help: "Signaling messages fanned out, by kind",
	}, []string{"kind"})

	SignalsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_signals_dropped_total",
		Help: "Signaling messages addressed to unknown calls",
	})

	AudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_audio_chunks_total",
		Help: "Binary audio chunks fed to recognition sessions",
	})

	Transcripts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_transcripts_total",
		Help: "Transcript events received, by finality",
	}, []string{"finality"})

	SpeechErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_speech_errors_total",
		Help: "Recognition session errors",
	})

	Translations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_translations_total",
		Help: "Translation calls attempted",
	})

	TranslationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_translation_failures_total",
		Help: "Translation calls that fell back to the original text",
	})

	CaptionsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_captions_delivered_total",
		Help: "Caption messages delivered to recipients",
	})
)
