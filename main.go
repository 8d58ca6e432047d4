// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/babelmeet/relay/internal/config"
	"github.com/babelmeet/relay/internal/events"
	"github.com/babelmeet/relay/internal/hub"
	"github.com/babelmeet/relay/internal/registry"
	"github.com/babelmeet/relay/internal/transcribe"
	"github.com/babelmeet/relay/internal/translate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("starting relay", "port", cfg.Port, "stt_disabled", cfg.DisableSTT)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	translator := translate.NewHTTPTranslator(cfg.TranslateBaseURL, cfg.TranslateTimeout)
	feed := events.New(events.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})

	var openSession transcribe.SessionFactory
	var recognizer *transcribe.GoogleRecognizer
	if cfg.DisableSTT {
		slog.Info("transcription disabled, running signaling-only")
	} else {
		recognizer, err = transcribe.NewGoogleRecognizer(ctx)
		if err != nil {
			slog.Error("failed to create speech client", "error", err)
			os.Exit(1)
		}
		openSession = recognizer.Open
	}

	h := hub.New(hub.Config{
		Registry:         registry.New(),
		Translator:       translator,
		Feed:             feed,
		TranslateTimeout: cfg.TranslateTimeout,
		OpenSession:      openSession,
	})

	mux := http.NewServeMux()
	mux.Handle("GET /ws", h)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	h.Shutdown()
	if recognizer != nil {
		if err := recognizer.Close(); err != nil {
			slog.Error("speech client close error", "error", err)
		}
	}
	if err := feed.Close(); err != nil {
		slog.Error("caption feed close error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
