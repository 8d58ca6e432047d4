// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

// Audio profile of the browser capture path: Opus frames in a WebM
// container at 48kHz, forwarded verbatim without server-side decoding.
const (
	audioEncoding   = speechpb.RecognitionConfig_WEBM_OPUS
	audioSampleRate = 48000
)

// GoogleRecognizer wraps a shared Cloud Speech client and opens one
// streaming recognition session per participant.
type GoogleRecognizer struct {
	client *speech.Client
	logger *slog.Logger
}

// NewGoogleRecognizer creates the shared client. Credentials come from the
// environment (GOOGLE_APPLICATION_CREDENTIALS or ambient service account).
func NewGoogleRecognizer(ctx context.Context) (*GoogleRecognizer, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating speech client: %w", err)
	}
	return &GoogleRecognizer{
		client: c,
		logger: slog.With("component", "google_recognizer"),
	}, nil
}

func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}

// Open starts a streaming session requesting interim results for the
// participant's language and satisfies SessionFactory.
func (g *GoogleRecognizer) Open(ctx context.Context, languageTag string, sink EventSink) (Session, error) {
	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening recognize stream: %w", err)
	}

	// The config must be the first message on the stream.
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        audioEncoding,
					SampleRateHertz: audioSampleRate,
					LanguageCode:    languageTag,
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sending recognize config: %w", err)
	}

	s := &googleSession{
		stream: stream,
		logger: g.logger.With("language", languageTag),
	}
	go s.receive(ctx, sink)
	return s, nil
}

type googleSession struct {
	stream speechpb.Speech_StreamingRecognizeClient
	logger *slog.Logger
}

func (s *googleSession) Write(chunk []byte) error {
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk,
		},
	})
}

func (s *googleSession) Close() error {
	return s.stream.CloseSend()
}

// receive pumps recognition responses to the sink until the stream ends.
// A clean end (EOF after Close, or context cancellation) is not a fault.
func (s *googleSession) receive(ctx context.Context, sink EventSink) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			s.logger.Debug("recognize stream error", "error", err)
			sink.OnSpeechError(err)
			return
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			text := result.Alternatives[0].Transcript
			if text == "" {
				continue
			}
			sink.OnTranscript(Event{Text: text, Final: result.IsFinal})
		}
	}
}
