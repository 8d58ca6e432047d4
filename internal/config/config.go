// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port             string
	LogLevel         string
	TranslateBaseURL string
	TranslateTimeout time.Duration
	DisableSTT       bool
	KafkaBrokers     []string
	KafkaTopic       string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:             os.Getenv("RELAY_PORT"),
		LogLevel:         os.Getenv("RELAY_LOG_LEVEL"),
		TranslateBaseURL: os.Getenv("RELAY_TRANSLATE_URL"),
		TranslateTimeout: 10 * time.Second,
		KafkaTopic:       os.Getenv("RELAY_KAFKA_TOPIC"),
	}

	if cfg.Port == "" {
		cfg.Port = "8085"
	}
	if cfg.TranslateBaseURL == "" {
		cfg.TranslateBaseURL = "https://api.mymemory.translated.net"
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "relay.captions"
	}

	if v := os.Getenv("RELAY_TRANSLATE_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid RELAY_TRANSLATE_TIMEOUT_SEC: %q", v)
		}
		cfg.TranslateTimeout = time.Duration(sec) * time.Second
	}

	disable := os.Getenv("RELAY_DISABLE_STT")
	cfg.DisableSTT = disable == "true" || disable == "1"

	if brokers := os.Getenv("RELAY_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg, nil
}
