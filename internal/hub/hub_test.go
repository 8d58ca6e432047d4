// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/babelmeet/relay/internal/registry"
	"github.com/babelmeet/relay/internal/signaling"
	"github.com/babelmeet/relay/internal/transcribe"
)

type frame struct {
	msgType int
	data    []byte
}

// fakeConn is an in-memory transport: the test plays the browser side.
type fakeConn struct {
	in        chan frame
	out       chan frame
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan frame, 64),
		out:    make(chan frame, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-f.in:
		return fr.msgType, fr.data, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteMessage(msgType int, data []byte) error {
	select {
	case f.out <- frame{msgType: msgType, data: data}:
		return nil
	case <-f.closed:
		return errors.New("connection closed")
	default:
		return errors.New("outbound buffer full")
	}
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) sendText(t *testing.T, msg signaling.ClientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	f.in <- frame{msgType: websocket.TextMessage, data: data}
}

func (f *fakeConn) sendAudio(chunk []byte) {
	f.in <- frame{msgType: websocket.BinaryMessage, data: chunk}
}

// expect reads outbound frames until one of the wanted type arrives.
func (f *fakeConn) expect(t *testing.T, msgType string) signaling.ServerMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case fr := <-f.out:
			var msg signaling.ServerMessage
			if err := json.Unmarshal(fr.data, &msg); err != nil {
				t.Fatalf("undecodable outbound frame: %v", err)
			}
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", msgType)
		}
	}
}

func (f *fakeConn) expectNone(t *testing.T, msgType string) {
	t.Helper()
	timeout := time.After(150 * time.Millisecond)
	for {
		select {
		case fr := <-f.out:
			var msg signaling.ServerMessage
			if err := json.Unmarshal(fr.data, &msg); err != nil {
				continue
			}
			if msg.Type == msgType {
				t.Fatalf("unexpected %q message: %+v", msgType, msg)
			}
		case <-timeout:
			return
		}
	}
}

type mapTranslator struct{ table map[string]string }

func (m mapTranslator) Translate(_ context.Context, text, from, to string) (string, error) {
	if out, ok := m.table[text+"/"+from+"/"+to]; ok {
		return out, nil
	}
	return "", errors.New("no translation")
}

// scriptedSession emits one transcript event per audio chunk, following a
// script of (text, final) pairs.
type scriptedSession struct {
	mu     sync.Mutex
	sink   transcribe.EventSink
	script []transcribe.Event
	next   int
}

func (s *scriptedSession) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next < len(s.script) {
		ev := s.script[s.next]
		s.next++
		go s.sink.OnTranscript(ev)
	}
	return nil
}

func (s *scriptedSession) Close() error { return nil }

func scriptedFactory(script []transcribe.Event) transcribe.SessionFactory {
	return func(_ context.Context, _ string, sink transcribe.EventSink) (transcribe.Session, error) {
		return &scriptedSession{sink: sink, script: script}, nil
	}
}

type testEnv struct {
	hub *Hub
	reg *registry.Registry
}

func newTestEnv(factory transcribe.SessionFactory, table map[string]string) *testEnv {
	reg := registry.New()
	h := New(Config{
		Registry:         reg,
		Translator:       mapTranslator{table: table},
		TranslateTimeout: time.Second,
		OpenSession:      factory,
	})
	return &testEnv{hub: h, reg: reg}
}

func (e *testEnv) connect(t *testing.T) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	go e.hub.RunConn(conn)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartCallFlow(t *testing.T) {
	env := newTestEnv(nil, nil)
	alice := env.connect(t)
	bob := env.connect(t)

	alice.sendText(t, signaling.ClientMessage{
		Type:        signaling.TypeStartCall,
		DisplayName: "Alice",
		Locale:      "es-ES",
	})

	created := alice.expect(t, signaling.TypeCallID)
	if created.CallID == "" {
		t.Fatal("call-id reply missing id")
	}

	started := bob.expect(t, signaling.TypeCallStarted)
	if started.CallID != created.CallID {
		t.Errorf("broadcast id %q != created id %q", started.CallID, created.CallID)
	}
	if started.Call == nil || started.Call.OwnerName != "Alice" || started.Call.OwnerLang != "es" {
		t.Errorf("call-started not enriched with owner metadata: %+v", started.Call)
	}

	snap, err := env.reg.Get(created.CallID)
	if err != nil {
		t.Fatalf("created call not in registry: %v", err)
	}
	if len(snap.Members) != 1 {
		t.Errorf("fresh call has %d members, want 1", len(snap.Members))
	}
}

func TestJoinCallAndActiveCalls(t *testing.T) {
	env := newTestEnv(nil, nil)
	alice := env.connect(t)
	bob := env.connect(t)

	alice.sendText(t, signaling.ClientMessage{Type: signaling.TypeStartCall})
	id := alice.expect(t, signaling.TypeCallID).CallID

	bob.sendText(t, signaling.ClientMessage{Type: signaling.TypeGetActiveCalls})
	active := bob.expect(t, signaling.TypeActiveCalls)
	if len(active.Calls) != 1 || active.Calls[0].ID != id {
		t.Fatalf("active-calls = %+v, want the fresh call", active.Calls)
	}

	bob.sendText(t, signaling.ClientMessage{Type: signaling.TypeSetLanguage, Locale: "fr-FR"})
	bob.sendText(t, signaling.ClientMessage{Type: signaling.TypeJoinCall, CallID: id})
	joined := bob.expect(t, signaling.TypeJoinedCall)
	if joined.CallID != id {
		t.Errorf("joined-call id = %q, want %q", joined.CallID, id)
	}

	waitFor(t, func() bool {
		snap, err := env.reg.Get(id)
		return err == nil && len(snap.Members) == 2
	}, "bob to appear in registry")

	snap, _ := env.reg.Get(id)
	for _, lang := range snap.Members {
		if lang != "en" && lang != "fr" {
			t.Errorf("unexpected member language %q", lang)
		}
	}
}

func TestJoinUnknownCallReportsError(t *testing.T) {
	env := newTestEnv(nil, nil)
	bob := env.connect(t)

	bob.sendText(t, signaling.ClientMessage{Type: signaling.TypeJoinCall, CallID: "deadbeef"})
	errMsg := bob.expect(t, signaling.TypeCallError)
	if errMsg.CallID != "deadbeef" {
		t.Errorf("call-error for %q, want deadbeef", errMsg.CallID)
	}
}

func TestSignalRelayedToOthersOnly(t *testing.T) {
	env := newTestEnv(nil, nil)
	alice := env.connect(t)
	bob := env.connect(t)
	carol := env.connect(t)

	alice.sendText(t, signaling.ClientMessage{Type: signaling.TypeStartCall})
	id := alice.expect(t, signaling.TypeCallID).CallID

	bob.sendText(t, signaling.ClientMessage{Type: signaling.TypeJoinCall, CallID: id})
	bob.expect(t, signaling.TypeJoinedCall)
	carol.sendText(t, signaling.ClientMessage{Type: signaling.TypeJoinCall, CallID: id})
	carol.expect(t, signaling.TypeJoinedCall)

	alice.sendText(t, signaling.ClientMessage{
		Type:   signaling.TypeOffer,
		CallID: id,
	})

	for _, peer := range []*fakeConn{bob, carol} {
		offer := peer.expect(t, signaling.TypeOffer)
		if offer.From == "" {
			t.Error("relayed offer missing sender id")
		}
	}
	alice.expectNone(t, signaling.TypeOffer)
}

func TestSignalUnknownCallReportsError(t *testing.T) {
	env := newTestEnv(nil, nil)
	alice := env.connect(t)

	alice.sendText(t, signaling.ClientMessage{Type: signaling.TypeAnswer, CallID: "deadbeef"})
	alice.expect(t, signaling.TypeCallError)
}

func TestMalformedMessagesDoNotKillLoop(t *testing.T) {
	env := newTestEnv(nil, nil)
	alice := env.connect(t)

	alice.in <- frame{msgType: websocket.TextMessage, data: []byte("{not json")}
	alice.sendText(t, signaling.ClientMessage{Type: signaling.TypeOffer}) // missing call id
	alice.sendText(t, signaling.ClientMessage{Type: "bogus-type"})

	// The loop is still alive and serving.
	alice.sendText(t, signaling.ClientMessage{Type: signaling.TypeGetActiveCalls})
	alice.expect(t, signaling.TypeActiveCalls)
}

func TestDisconnectTeardown(t *testing.T) {
	env := newTestEnv(nil, nil)
	alice := env.connect(t)
	bob := env.connect(t)

	alice.sendText(t, signaling.ClientMessage{Type: signaling.TypeStartCall})
	id := alice.expect(t, signaling.TypeCallID).CallID
	bob.sendText(t, signaling.ClientMessage{Type: signaling.TypeJoinCall, CallID: id})
	bob.expect(t, signaling.TypeJoinedCall)

	bob.Close()
	waitFor(t, func() bool {
		snap, err := env.reg.Get(id)
		return err == nil && len(snap.Members) == 1
	}, "bob to leave the call")

	alice.Close()
	waitFor(t, func() bool {
		_, err := env.reg.Get(id)
		return errors.Is(err, registry.ErrCallNotFound)
	}, "orphaned call to be pruned")
}

func TestDisconnectWithoutCall(t *testing.T) {
	env := newTestEnv(nil, nil)
	alice := env.connect(t)

	alice.Close()
	waitFor(t, func() bool {
		env.hub.mu.Lock()
		defer env.hub.mu.Unlock()
		return len(env.hub.clients) == 0
	}, "client to unregister")

	if len(env.reg.List()) != 0 {
		t.Error("registry mutated by a participant that never joined a call")
	}
}

func TestStartCallLeavesPreviousCall(t *testing.T) {
	env := newTestEnv(nil, nil)
	alice := env.connect(t)

	alice.sendText(t, signaling.ClientMessage{Type: signaling.TypeStartCall})
	first := alice.expect(t, signaling.TypeCallID).CallID

	alice.sendText(t, signaling.ClientMessage{Type: signaling.TypeStartCall})
	second := alice.expect(t, signaling.TypeCallID).CallID

	waitFor(t, func() bool {
		_, err := env.reg.Get(first)
		return errors.Is(err, registry.ErrCallNotFound)
	}, "first call to be pruned after implicit leave")

	if _, err := env.reg.Get(second); err != nil {
		t.Errorf("second call missing: %v", err)
	}
}

func TestPartialTranscriptEchoedOnlyToSpeaker(t *testing.T) {
	factory := scriptedFactory([]transcribe.Event{
		{Text: "hel", Final: false},
		{Text: "hello", Final: true},
	})
	env := newTestEnv(factory, map[string]string{"hello/en/fr": "bonjour"})
	alice := env.connect(t)
	bob := env.connect(t)

	alice.sendText(t, signaling.ClientMessage{Type: signaling.TypeStartCall})
	id := alice.expect(t, signaling.TypeCallID).CallID

	bob.sendText(t, signaling.ClientMessage{Type: signaling.TypeSetLanguage, Locale: "fr-FR"})
	bob.sendText(t, signaling.ClientMessage{Type: signaling.TypeJoinCall, CallID: id})
	bob.expect(t, signaling.TypeJoinedCall)

	// First chunk yields the partial, second the final.
	alice.sendAudio([]byte{1})
	partial := alice.expect(t, signaling.TypeTranscript)
	if partial.Transcript == nil || partial.Transcript.Final {
		t.Fatalf("expected a partial transcript echo, got %+v", partial.Transcript)
	}
	bob.expectNone(t, signaling.TypeTranslatedTranscript)

	alice.sendAudio([]byte{2})
	final := alice.expect(t, signaling.TypeTranscript)
	if final.Transcript == nil || !final.Transcript.Final {
		t.Fatalf("expected a final transcript echo, got %+v", final.Transcript)
	}

	cap := bob.expect(t, signaling.TypeTranslatedTranscript)
	if cap.Caption == nil {
		t.Fatal("no caption payload")
	}
	if cap.Caption.Original != "hello" || cap.Caption.Translated != "bonjour" ||
		cap.Caption.From != "en" || cap.Caption.To != "fr" {
		t.Errorf("caption = %+v", cap.Caption)
	}
}

func TestSpeechErrorSurfacedToSpeaker(t *testing.T) {
	factory := func(_ context.Context, _ string, sink transcribe.EventSink) (transcribe.Session, error) {
		return nil, errors.New("recognizer unavailable")
	}
	env := newTestEnv(factory, nil)
	alice := env.connect(t)

	alice.sendAudio([]byte{1})
	msg := alice.expect(t, signaling.TypeSpeechError)
	if msg.Message == "" {
		t.Error("speech-error without a message")
	}
}

func TestSetLanguagePropagatesToRegistry(t *testing.T) {
	env := newTestEnv(nil, nil)
	alice := env.connect(t)

	alice.sendText(t, signaling.ClientMessage{Type: signaling.TypeStartCall})
	id := alice.expect(t, signaling.TypeCallID).CallID

	alice.sendText(t, signaling.ClientMessage{Type: signaling.TypeSetLanguage, Locale: "de-DE"})

	waitFor(t, func() bool {
		snap, err := env.reg.Get(id)
		if err != nil {
			return false
		}
		for _, lang := range snap.Members {
			return lang == "de"
		}
		return false
	}, "registry language update")
}
