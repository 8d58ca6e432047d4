// SPDX-FileCopyrightText: 2026 BabelMeet contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package language derives translation routing tags from client locales.
package language

import "strings"

const (
	DefaultLocale = "en-US"
	DefaultShort  = "en"
)

// Normalize maps a client locale to the pair used throughout the relay:
// the full tag fed to the recognition engine and the short primary subtag
// used for translation routing. An absent locale falls back to en-US/en.
func Normalize(locale string) (full, short string) {
	if locale == "" {
		return DefaultLocale, DefaultShort
	}
	full = locale
	short, _, _ = strings.Cut(locale, "-")
	if short == "" {
		short = DefaultShort
	}
	return full, short
}
