// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"math"
)

// =============================================================================
// SETTINGS TYPE
// =============================================================================

// AspectRatio is the shape requested for generated images.
type AspectRatio string

const (
	Ratio1x1  AspectRatio = "1:1"
	Ratio3x4  AspectRatio = "3:4"
	Ratio4x3  AspectRatio = "4:3"
	Ratio9x16 AspectRatio = "9:16"
	Ratio16x9 AspectRatio = "16:9"
)

// AspectRatios lists the accepted ratios in display order.
var AspectRatios = []AspectRatio{Ratio1x1, Ratio3x4, Ratio4x3, Ratio9x16, Ratio16x9}

// ErrInvalidAspectRatio is returned for ratios outside AspectRatios.
var ErrInvalidAspectRatio = errors.New("invalid aspect ratio")

// ParseAspectRatio validates s against the accepted literals.
func ParseAspectRatio(s string) (AspectRatio, error) {
	for _, r := range AspectRatios {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of 1:1, 3:4, 4:3, 9:16, 16:9)", ErrInvalidAspectRatio, s)
}

// Settings are the user's generation preferences.
type Settings struct {
	Model            string      `json:"model"`
	Temperature      float64     `json:"temperature"`
	ImageAspectRatio AspectRatio `json:"imageAspectRatio"`
}

// DefaultSettings returns the settings used before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		Model:            DefaultModel,
		Temperature:      0.7,
		ImageAspectRatio: Ratio1x1,
	}
}

// ClampTemperature forces t into [0, 1]. NaN maps to 0.
func ClampTemperature(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// Sanitize replaces out-of-range fields with defaults so a hand-edited or
// partially written record can never break generation.
func (s Settings) Sanitize() Settings {
	def := DefaultSettings()
	if s.Model == "" {
		s.Model = def.Model
	}
	s.Temperature = ClampTemperature(s.Temperature)
	if _, err := ParseAspectRatio(string(s.ImageAspectRatio)); err != nil {
		s.ImageAspectRatio = def.ImageAspectRatio
	}
	return s
}
