// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hub binds transport connections to registry and transcription
// state, and guarantees full teardown when a connection goes away.
package hub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/babelmeet/relay/internal/caption"
	"github.com/babelmeet/relay/internal/metrics"
	"github.com/babelmeet/relay/internal/registry"
	"github.com/babelmeet/relay/internal/signaling"
	"github.com/babelmeet/relay/internal/transcribe"
	"github.com/babelmeet/relay/internal/translate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Config holds the collaborators shared by all connections.
type Config struct {
	Registry         *registry.Registry
	Translator       translate.Translator
	Feed             caption.Feed
	TranslateTimeout time.Duration

	// OpenSession is nil when transcription is disabled; audio chunks
	// are then dropped and the relay runs signaling-only.
	OpenSession transcribe.SessionFactory
}

type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client

	registry    *registry.Registry
	relay       *signaling.Relay
	fanout      *caption.Fanout
	openSession transcribe.SessionFactory
	logger      *slog.Logger
}

func New(cfg Config) *Hub {
	h := &Hub{
		clients:     make(map[string]*Client),
		registry:    cfg.Registry,
		openSession: cfg.OpenSession,
		logger:      slog.With("component", "hub"),
	}
	h.relay = signaling.NewRelay(cfg.Registry, h)
	h.fanout = caption.NewFanout(cfg.Registry, cfg.Translator, h, cfg.Feed, cfg.TranslateTimeout)
	return h
}

// ServeHTTP upgrades the connection and runs its session until disconnect.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	h.RunConn(conn)
}

// RunConn drives one connection's session to completion. Split from
// ServeHTTP so tests can drive a fake transport.
func (h *Hub) RunConn(conn Conn) {
	c := newClient(h, conn)
	h.register(c)

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	c.run()
}

// Deliver sends a message to one connected participant. Messages for a
// participant that already disconnected are dropped.
func (h *Hub) Deliver(participantID string, msg signaling.ServerMessage) {
	h.mu.Lock()
	c, ok := h.clients[participantID]
	h.mu.Unlock()

	if !ok {
		return
	}
	c.send(msg)
}

// Broadcast sends a message to every connected participant.
func (h *Hub) Broadcast(msg signaling.ServerMessage) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.send(msg)
	}
}

// Shutdown disconnects every client; each teardown runs in its own
// connection goroutine as the closed sockets unblock their read loops.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.conn.Close()
	}
	h.logger.Info("hub shutdown, connections closed", "count", len(targets))
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Info("client connected", "conn_id", c.id)
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
	h.logger.Info("client disconnected", "conn_id", id)
}

func (h *Hub) syncCallsGauge() {
	metrics.CallsActive.Set(float64(len(h.registry.List())))
}
