// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package signaling

import (
	"github.com/pion/webrtc/v4"

	"github.com/babelmeet/relay/internal/registry"
)

// Inbound message types.
const (
	TypeSetLanguage    = "set-language"
	TypeStartCall      = "start-call"
	TypeJoinCall       = "join-call"
	TypeGetActiveCalls = "get-active-calls"
	TypeOffer          = "offer"
	TypeAnswer         = "answer"
	TypeICECandidate   = "ice-candidate"
)

// Outbound message types.
const (
	TypeCallID               = "call-id"
	TypeJoinedCall           = "joined-call"
	TypeCallStarted          = "call-started"
	TypeCallError            = "call-error"
	TypeActiveCalls          = "active-calls"
	TypeTranscript           = "transcript"
	TypeTranslatedTranscript = "translated-transcript"
	TypeSpeechError          = "speech-error"
)

// ClientMessage is one inbound text frame. Binary frames carry raw audio
// and never reach the JSON decoder.
type ClientMessage struct {
	Type string `json:"type"`

	// set-language / start-call
	Locale      string `json:"locale,omitempty"`
	DisplayName string `json:"displayName,omitempty"`

	// join-call and all signaling kinds
	CallID string `json:"callId,omitempty"`

	// offer / answer
	SDP *webrtc.SessionDescription `json:"sdp,omitempty"`

	// ice-candidate
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// ServerMessage is one outbound text frame.
type ServerMessage struct {
	Type string `json:"type"`

	CallID  string `json:"callId,omitempty"`
	From    string `json:"from,omitempty"`
	Message string `json:"message,omitempty"`

	Calls []registry.Summary `json:"calls,omitempty"`
	Call  *registry.Summary  `json:"call,omitempty"`

	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`

	Transcript *TranscriptPayload `json:"transcript,omitempty"`
	Caption    *CaptionPayload    `json:"caption,omitempty"`
}

// TranscriptPayload echoes a speaker's own recognition result.
type TranscriptPayload struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// CaptionPayload is the fan-out unit delivered to a peer. Built fresh per
// recipient and never mutated after construction.
type CaptionPayload struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
	From       string `json:"from"`
	To         string `json:"to"`
}
