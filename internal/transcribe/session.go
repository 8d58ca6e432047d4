// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcribe owns the streaming recognition session of each
// connected participant and turns the engine's asynchronous results into
// typed transcript events.
package transcribe

import "context"

// Event is one recognition result. Interim events may be superseded by a
// later final event for the same utterance.
type Event struct {
	Text  string
	Final bool
}

// EventSink receives transcript events and session faults for one
// participant. Events arrive in the order the session emits them.
type EventSink interface {
	OnTranscript(Event)
	OnSpeechError(err error)
}

// Session is one open streaming recognition stream. Write appends an audio
// chunk; the caller serializes writes. Close flushes and releases the
// stream; no events are delivered afterwards for chunks never written.
type Session interface {
	Write(chunk []byte) error
	Close() error
}

// SessionFactory opens a recognition session configured for the given
// full language tag, delivering results to sink until the session ends.
type SessionFactory func(ctx context.Context, languageTag string, sink EventSink) (Session, error)
