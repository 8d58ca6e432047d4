// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry tracks live calls and their membership. It is the only
// state shared across connections; every mutation goes through a Registry
// method under its mutex.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
)

var ErrCallNotFound = errors.New("call not found")

const (
	callIDBytes      = 4 // 8 hex characters on the wire
	maxCreateRetries = 5

	DefaultOwnerName = "Guest"
)

// call is the registry-internal record. Members maps participant identity
// to that participant's short language tag, so the membership set and the
// language map can never diverge.
type call struct {
	id        string
	ownerName string
	ownerLang string
	members   map[string]string
}

// Snapshot is a deep copy of one call, safe to read after the registry
// has moved on.
type Snapshot struct {
	ID        string
	OwnerName string
	OwnerLang string
	Members   map[string]string
}

// Summary is the enumeration form advertised to clients.
type Summary struct {
	ID        string `json:"id"`
	OwnerName string `json:"ownerName"`
	OwnerLang string `json:"ownerLang"`
}

type Registry struct {
	mu     sync.Mutex
	calls  map[string]*call
	logger *slog.Logger
}

func New() *Registry {
	return &Registry{
		calls:  make(map[string]*call),
		logger: slog.With("component", "registry"),
	}
}

// Create allocates a fresh call with the owner as its only member and
// returns the new call id. IDs carry enough entropy that collisions are
// improbable; the generate loop retries anyway for correctness.
func (r *Registry) Create(ownerID, ownerShortLang, ownerName string) string {
	if ownerName == "" {
		ownerName = DefaultOwnerName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for i := 0; i < maxCreateRetries; i++ {
		id = newCallID()
		if _, taken := r.calls[id]; !taken {
			break
		}
		r.logger.Warn("call id collision, regenerating", "call_id", id)
	}

	r.calls[id] = &call{
		id:        id,
		ownerName: ownerName,
		ownerLang: ownerShortLang,
		members:   map[string]string{ownerID: ownerShortLang},
	}

	r.logger.Info("call created", "call_id", id, "owner_name", ownerName, "owner_lang", ownerShortLang)
	return id
}

// Join adds a participant to an existing call. Re-joining is idempotent;
// the language entry is refreshed either way.
func (r *Registry) Join(callID, participantID, shortLang string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[callID]
	if !ok {
		return ErrCallNotFound
	}

	c.members[participantID] = shortLang
	r.logger.Info("participant joined", "call_id", callID, "participant_id", participantID, "lang", shortLang)
	return nil
}

// Leave removes a participant. The call is deleted the moment its last
// member leaves; unknown calls and non-members are ignored.
func (r *Registry) Leave(callID, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[callID]
	if !ok {
		return
	}
	if _, member := c.members[participantID]; !member {
		return
	}

	delete(c.members, participantID)
	r.logger.Info("participant left", "call_id", callID, "participant_id", participantID)

	if len(c.members) == 0 {
		delete(r.calls, callID)
		r.logger.Info("call deleted, last participant left", "call_id", callID)
	}
}

// SetLanguage updates a current member's language entry. Participants not
// in the call are left alone; their language is cached at the connection
// level and applied at join time.
func (r *Registry) SetLanguage(callID, participantID, shortLang string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[callID]
	if !ok {
		return
	}
	if _, member := c.members[participantID]; !member {
		return
	}
	c.members[participantID] = shortLang
}

// Get returns a deep-copied snapshot of one call.
func (r *Registry) Get(callID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[callID]
	if !ok {
		return Snapshot{}, ErrCallNotFound
	}

	members := make(map[string]string, len(c.members))
	for id, lang := range c.members {
		members[id] = lang
	}
	return Snapshot{
		ID:        c.id,
		OwnerName: c.ownerName,
		OwnerLang: c.ownerLang,
		Members:   members,
	}, nil
}

// List enumerates all live calls. Order is not significant.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Summary, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, Summary{
			ID:        c.id,
			OwnerName: c.ownerName,
			OwnerLang: c.ownerLang,
		})
	}
	return out
}

func newCallID() string {
	b := make([]byte, callIDBytes)
	rand.Read(b)
	return hex.EncodeToString(b)
}
