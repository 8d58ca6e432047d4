// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package caption fans a finalized transcript out to the other members of
// the speaker's call, translated per recipient.
package caption

import (
	"context"
	"log/slog"
	"time"

	"github.com/babelmeet/relay/internal/events"
	"github.com/babelmeet/relay/internal/metrics"
	"github.com/babelmeet/relay/internal/registry"
	"github.com/babelmeet/relay/internal/signaling"
	"github.com/babelmeet/relay/internal/translate"
)

// Feed receives finalized caption events; nil disables the feed.
type Feed interface {
	PublishCaption(ctx context.Context, ev events.CaptionEvent)
}

type Fanout struct {
	registry   *registry.Registry
	translator translate.Translator
	out        signaling.Deliverer
	feed       Feed
	timeout    time.Duration
	logger     *slog.Logger
}

func NewFanout(reg *registry.Registry, tr translate.Translator, out signaling.Deliverer, feed Feed, timeout time.Duration) *Fanout {
	return &Fanout{
		registry:   reg,
		translator: tr,
		out:        out,
		feed:       feed,
		timeout:    timeout,
		logger:     slog.With("component", "caption_fanout"),
	}
}

// Publish delivers a final transcript from the speaker to every other
// member of the call, each in their recorded language. Deliveries are
// independent and may complete out of order. A speaker with no call has
// no audience; the transcript is simply dropped here.
func (f *Fanout) Publish(ctx context.Context, speakerID, callID, srcLang, text string) {
	if callID == "" || text == "" {
		return
	}

	snap, err := f.registry.Get(callID)
	if err != nil {
		// The call ended between finalization and fan-out.
		f.logger.Debug("fan-out for vanished call", "call_id", callID, "speaker_id", speakerID)
		return
	}

	for memberID, memberLang := range snap.Members {
		if memberID == speakerID {
			continue
		}
		go f.deliver(ctx, snap.ID, speakerID, memberID, srcLang, memberLang, text)
	}
}

// deliver translates for one recipient and sends the caption. Translation
// failures degrade to the untranslated original; the caption itself is
// never dropped.
func (f *Fanout) deliver(ctx context.Context, callID, speakerID, memberID, srcLang, dstLang, text string) {
	translated := text
	if dstLang != srcLang {
		tctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		metrics.Translations.Inc()
		out, err := f.translator.Translate(tctx, text, srcLang, dstLang)
		if err != nil {
			metrics.TranslationFailures.Inc()
			f.logger.Warn("translation failed, delivering original text",
				"error", err,
				"call_id", callID,
				"from", srcLang,
				"to", dstLang,
			)
		} else {
			translated = out
		}
	}

	f.out.Deliver(memberID, signaling.ServerMessage{
		Type:   signaling.TypeTranslatedTranscript,
		CallID: callID,
		From:   speakerID,
		Caption: &signaling.CaptionPayload{
			Original:   text,
			Translated: translated,
			From:       srcLang,
			To:         dstLang,
		},
	})
	metrics.CaptionsDelivered.Inc()

	if f.feed != nil {
		f.feed.PublishCaption(ctx, events.CaptionEvent{
			CallID:      callID,
			SpeakerID:   speakerID,
			RecipientID: memberID,
			From:        srcLang,
			To:          dstLang,
			Original:    text,
			Translated:  translated,
			EmittedAt:   time.Now().UTC(),
		})
	}
}
