// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package signaling defines the wire protocol and routes offer/answer/ICE
// messages between the members of a call.
package signaling

import (
	"log/slog"

	"github.com/babelmeet/relay/internal/metrics"
	"github.com/babelmeet/relay/internal/registry"
)

// Deliverer sends a message to one connected participant. Implemented by
// the hub; delivery to an already-gone connection is a silent no-op.
type Deliverer interface {
	Deliver(participantID string, msg ServerMessage)
}

type Relay struct {
	registry *registry.Registry
	out      Deliverer
	logger   *slog.Logger
}

func NewRelay(reg *registry.Registry, out Deliverer) *Relay {
	return &Relay{
		registry: reg,
		out:      out,
		logger:   slog.With("component", "signaling_relay"),
	}
}

// Forward delivers msg to every current member of the call except the
// sender. The payload passes through unchanged; only Type, From and CallID
// are set here. An unknown call id is reported back to the caller so the
// sender gets an explicit call-error instead of a silent drop.
func (r *Relay) Forward(senderID string, msg ClientMessage) error {
	snap, err := r.registry.Get(msg.CallID)
	if err != nil {
		metrics.SignalsDropped.Inc()
		r.logger.Warn("signaling message for unknown call",
			"kind", msg.Type,
			"call_id", msg.CallID,
			"sender_id", senderID,
		)
		return err
	}

	relayed := ServerMessage{
		Type:      msg.Type,
		CallID:    msg.CallID,
		From:      senderID,
		SDP:       msg.SDP,
		Candidate: msg.Candidate,
	}

	for memberID := range snap.Members {
		if memberID == senderID {
			continue
		}
		r.out.Deliver(memberID, relayed)
		metrics.SignalsRelayed.WithLabelValues(msg.Type).Inc()
	}
	return nil
}
