// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/babelmeet/relay/internal/language"
	"github.com/babelmeet/relay/internal/metrics"
	"github.com/babelmeet/relay/internal/registry"
	"github.com/babelmeet/relay/internal/signaling"
	"github.com/babelmeet/relay/internal/transcribe"
)

// Conn is the transport subset the hub needs; satisfied by *websocket.Conn.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is the per-connection state record. All fields under mu belong to
// the participant and are owned by this connection's flow; nothing here is
// shared through closures.
type Client struct {
	id   string
	hub  *Hub
	conn Conn

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu          sync.Mutex
	displayName string
	fullLang    string
	shortLang   string
	callID      string

	bridge *transcribe.Bridge
	logger *slog.Logger
}

func newClient(h *Hub, conn Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		id:        uuid.NewString(),
		hub:       h,
		conn:      conn,
		ctx:       ctx,
		cancel:    cancel,
		fullLang:  language.DefaultLocale,
		shortLang: language.DefaultShort,
	}
	c.logger = slog.With("component", "client", "conn_id", c.id)

	if h.openSession != nil {
		c.bridge = transcribe.NewBridge(ctx, h.openSession, c, language.DefaultLocale, c.logger)
	}
	return c
}

// run is the connection's single flow of control: it reads frames until
// the transport fails, then tears everything down.
func (c *Client) run() {
	defer c.teardown()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug("connection read ended", "error", err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if c.bridge != nil {
				c.bridge.Feed(data)
			}
		case websocket.TextMessage:
			c.handleText(data)
		}
	}
}

// teardown runs every cleanup step independently: a transcription
// shutdown fault must not prevent registry cleanup, and vice versa.
func (c *Client) teardown() {
	c.cancel()

	if c.bridge != nil {
		c.bridge.Close()
	}

	c.mu.Lock()
	callID := c.callID
	c.callID = ""
	c.mu.Unlock()

	if callID != "" {
		c.hub.registry.Leave(callID, c.id)
		c.hub.syncCallsGauge()
	}

	c.hub.unregister(c.id)
	c.conn.Close()
}

func (c *Client) handleText(data []byte) {
	var msg signaling.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("malformed inbound message", "error", err)
		return
	}

	switch msg.Type {
	case signaling.TypeSetLanguage:
		c.handleSetLanguage(msg)
	case signaling.TypeStartCall:
		c.handleStartCall(msg)
	case signaling.TypeJoinCall:
		c.handleJoinCall(msg)
	case signaling.TypeGetActiveCalls:
		c.send(signaling.ServerMessage{
			Type:  signaling.TypeActiveCalls,
			Calls: c.hub.registry.List(),
		})
	case signaling.TypeOffer, signaling.TypeAnswer, signaling.TypeICECandidate:
		c.handleSignal(msg)
	default:
		c.logger.Warn("unknown inbound message type", "type", msg.Type)
	}
}

func (c *Client) handleSetLanguage(msg signaling.ClientMessage) {
	full, short := language.Normalize(msg.Locale)

	c.mu.Lock()
	c.fullLang = full
	c.shortLang = short
	callID := c.callID
	c.mu.Unlock()

	if c.bridge != nil {
		c.bridge.SetLanguage(full)
	}
	if callID != "" {
		c.hub.registry.SetLanguage(callID, c.id, short)
	}
	c.logger.Info("language set", "full", full, "short", short)
}

func (c *Client) handleStartCall(msg signaling.ClientMessage) {
	c.mu.Lock()
	if msg.DisplayName != "" {
		c.displayName = msg.DisplayName
	}
	if msg.Locale != "" {
		c.fullLang, c.shortLang = language.Normalize(msg.Locale)
	}
	name := c.displayName
	short := c.shortLang
	full := c.fullLang
	previous := c.callID
	c.mu.Unlock()

	if c.bridge != nil && msg.Locale != "" {
		c.bridge.SetLanguage(full)
	}

	// A participant is in at most one call; starting a new one leaves
	// the old one first.
	if previous != "" {
		c.hub.registry.Leave(previous, c.id)
	}

	id := c.hub.registry.Create(c.id, short, name)

	c.mu.Lock()
	c.callID = id
	c.mu.Unlock()

	metrics.CallsCreatedTotal.Inc()
	c.hub.syncCallsGauge()

	c.send(signaling.ServerMessage{Type: signaling.TypeCallID, CallID: id})

	summary := registry.Summary{ID: id, OwnerName: name, OwnerLang: short}
	if summary.OwnerName == "" {
		summary.OwnerName = registry.DefaultOwnerName
	}
	c.hub.Broadcast(signaling.ServerMessage{
		Type:   signaling.TypeCallStarted,
		CallID: id,
		Call:   &summary,
	})
}

func (c *Client) handleJoinCall(msg signaling.ClientMessage) {
	if msg.CallID == "" {
		c.logger.Warn("join-call without call id")
		return
	}

	c.mu.Lock()
	short := c.shortLang
	previous := c.callID
	c.mu.Unlock()

	if previous != "" && previous != msg.CallID {
		c.hub.registry.Leave(previous, c.id)
		c.hub.syncCallsGauge()
	}

	if err := c.hub.registry.Join(msg.CallID, c.id, short); err != nil {
		if errors.Is(err, registry.ErrCallNotFound) {
			c.send(signaling.ServerMessage{
				Type:    signaling.TypeCallError,
				CallID:  msg.CallID,
				Message: "call not found",
			})
			return
		}
		c.logger.Error("join failed", "error", err, "call_id", msg.CallID)
		return
	}

	c.mu.Lock()
	c.callID = msg.CallID
	c.mu.Unlock()

	c.send(signaling.ServerMessage{Type: signaling.TypeJoinedCall, CallID: msg.CallID})
}

func (c *Client) handleSignal(msg signaling.ClientMessage) {
	if msg.CallID == "" {
		c.logger.Warn("signaling message without call id", "kind", msg.Type)
		return
	}

	if err := c.hub.relay.Forward(c.id, msg); err != nil {
		c.send(signaling.ServerMessage{
			Type:    signaling.TypeCallError,
			CallID:  msg.CallID,
			Message: "call not found",
		})
	}
}

// OnTranscript implements transcribe.EventSink. Every event is echoed to
// the speaker; finals additionally fan out to the rest of the call.
func (c *Client) OnTranscript(ev transcribe.Event) {
	c.send(signaling.ServerMessage{
		Type:       signaling.TypeTranscript,
		Transcript: &signaling.TranscriptPayload{Text: ev.Text, Final: ev.Final},
	})

	if !ev.Final {
		return
	}

	c.mu.Lock()
	callID := c.callID
	short := c.shortLang
	c.mu.Unlock()

	c.hub.fanout.Publish(c.ctx, c.id, callID, short, ev.Text)
}

// OnSpeechError implements transcribe.EventSink.
func (c *Client) OnSpeechError(err error) {
	c.send(signaling.ServerMessage{
		Type:    signaling.TypeSpeechError,
		Message: err.Error(),
	})
}

func (c *Client) send(msg signaling.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal outbound message", "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("outbound write failed", "error", err)
	}
}
