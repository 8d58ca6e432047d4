// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcribe

import (
	"context"
	"log/slog"
	"sync"

	"github.com/babelmeet/relay/internal/metrics"
)

// Bridge manages the single recognition session of one connection. It is
// idle until the first audio chunk arrives, opens a session lazily with
// the participant's current language, and drops a faulted session so a
// later chunk starts a fresh one. At most one session exists at a time.
type Bridge struct {
	mu       sync.Mutex
	ctx      context.Context
	open     SessionFactory
	sink     EventSink
	language string
	session  Session
	closed   bool
	logger   *slog.Logger
}

func NewBridge(ctx context.Context, open SessionFactory, sink EventSink, languageTag string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		ctx:      ctx,
		open:     open,
		sink:     sink,
		language: languageTag,
		logger:   logger.With("component", "transcribe_bridge"),
	}
}

// Feed appends one audio chunk to the active session, opening one first if
// needed. Chunks are serialized in arrival order under the bridge mutex.
// Failures never propagate: they are surfaced to the participant as a
// speech error and the session resets toward idle.
func (b *Bridge) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.open == nil {
		return
	}

	if b.session == nil {
		rs := &resettingSink{bridge: b, inner: b.sink}
		sess, err := b.open(b.ctx, b.language, rs)
		if err != nil {
			b.logger.Error("failed to open recognition session", "error", err, "language", b.language)
			metrics.SpeechErrors.Inc()
			b.sink.OnSpeechError(err)
			return
		}
		rs.setSession(sess)
		b.session = sess
		b.logger.Debug("recognition session opened", "language", b.language)
	}

	metrics.AudioChunks.Inc()
	if err := b.session.Write(chunk); err != nil {
		b.logger.Warn("recognition session write failed", "error", err)
		metrics.SpeechErrors.Inc()
		b.session.Close()
		b.session = nil
		b.sink.OnSpeechError(err)
	}
}

// SetLanguage records a new full language tag. Any open session still
// speaks the old language, so it is closed; the next chunk reopens.
func (b *Bridge) SetLanguage(languageTag string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if languageTag == b.language {
		return
	}
	b.language = languageTag

	if b.session != nil {
		b.session.Close()
		b.session = nil
		b.logger.Debug("recognition session closed for language switch", "language", languageTag)
	}
}

// Close flushes and releases any open session. Further chunks are ignored.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	if b.session != nil {
		if err := b.session.Close(); err != nil {
			b.logger.Debug("recognition session close failed", "error", err)
		}
		b.session = nil
	}
}

// dropSession resets the bridge to idle. Stale faults from a session that
// was already replaced are ignored; the return value says whether the
// fault should still be surfaced to the participant.
func (b *Bridge) dropSession(sess Session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if sess != nil && b.session != nil && b.session != sess {
		return false
	}
	b.session = nil
	return true
}

// resettingSink forwards events to the connection's sink and resets the
// bridge when the session faults, making the fault recoverable.
type resettingSink struct {
	bridge *Bridge
	inner  EventSink
	mu     sync.Mutex
	sess   Session
}

func (s *resettingSink) OnTranscript(ev Event) {
	if ev.Final {
		metrics.Transcripts.WithLabelValues("final").Inc()
	} else {
		metrics.Transcripts.WithLabelValues("partial").Inc()
	}
	s.inner.OnTranscript(ev)
}

func (s *resettingSink) OnSpeechError(err error) {
	metrics.SpeechErrors.Inc()
	s.bridge.logger.Warn("recognition session error", "error", err)
	if s.bridge.dropSession(s.current()) {
		s.inner.OnSpeechError(err)
	}
}

func (s *resettingSink) setSession(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
}

func (s *resettingSink) current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}
