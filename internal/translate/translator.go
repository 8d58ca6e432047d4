// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package translate calls the external machine-translation endpoint.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

var ErrTranslate = errors.New("translation error")

// Translator converts text between two short language tags. Implementations
// are fallible; callers decide the fallback.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// HTTPTranslator talks to a MyMemory-compatible endpoint:
// GET {base}/get?q=<text>&langpair=<from>|<to> returning a JSON body with
// responseData.translatedText.
type HTTPTranslator struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPTranslator(baseURL string, timeout time.Duration) *HTTPTranslator {
	return &HTTPTranslator{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: slog.With("component", "http_translator"),
	}
}

type translateResponse struct {
	ResponseData struct {
		TranslatedText string `json:"translatedText"`
	} `json:"responseData"`
}

func (t *HTTPTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	q := url.Values{}
	q.Set("q", text)
	q.Set("langpair", from+"|"+to)
	reqURL := t.baseURL + "/get?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %v", ErrTranslate, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: executing request: %v", ErrTranslate, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrTranslate, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.logger.Warn("translation request failed",
			"status", resp.StatusCode,
			"from", from,
			"to", to,
		)
		return "", fmt.Errorf("%w: status %d", ErrTranslate, resp.StatusCode)
	}

	var parsed translateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: parsing response: %v", ErrTranslate, err)
	}
	if parsed.ResponseData.TranslatedText == "" {
		return "", fmt.Errorf("%w: empty translated text", ErrTranslate)
	}

	return parsed.ResponseData.TranslatedText, nil
}
