// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package verify

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// CodeSource produces one-time codes.
type CodeSource interface {
	Next() (string, error)
}

// RandomCodes draws codes uniformly from [100000, 999999], so a code never
// starts with zero.
type RandomCodes struct{}

var codeSpan = big.NewInt(900000)

// Next implements CodeSource.
func (RandomCodes) Next() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}

// HOTPCodes derives codes from a per-process secret and a counter
// (RFC 4226). Codes may start with zero.
type HOTPCodes struct {
	mu      sync.Mutex
	secret  string
	counter uint64
}

// NewHOTPCodes creates a HOTP source with a fresh random secret.
func NewHOTPCodes() (*HOTPCodes, error) {
	key, err := hotp.Generate(hotp.GenerateOpts{
		Issuer:      "Visionary",
		AccountName: "verification",
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate hotp secret: %w", err)
	}
	return &HOTPCodes{secret: key.Secret(), counter: uint64(time.Now().Unix())}, nil
}

// Next implements CodeSource.
func (h *HOTPCodes) Next() (string, error) {
	h.mu.Lock()
	h.counter++
	counter := h.counter
	h.mu.Unlock()

	code, err := hotp.GenerateCodeCustom(h.secret, counter, hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate hotp code: %w", err)
	}
	return code, nil
}

// NewCodeSource returns the source named in configuration ("random" or
// "hotp").
func NewCodeSource(name string) (CodeSource, error) {
	switch name {
	case "", "random":
		return RandomCodes{}, nil
	case "hotp":
		return NewHOTPCodes()
	default:
		return nil, fmt.Errorf("unknown code source %q", name)
	}
}
