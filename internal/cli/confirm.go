// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Confirmation handling for destructive commands.
//
// The flow is the same everywhere:
//  1. If --yes is present, proceed without prompting
//  2. If stdin is not a TTY, refuse (can't prompt)
//  3. Otherwise, ask and accept only an explicit yes

package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/visionary/internal/app"
)

// LineReader reads one line of input after showing prompt.
type LineReader interface {
	ReadInput(prompt string) (string, error)
}

// bufferedReader is a LineReader over a plain stream, for non-interactive
// input and tests.
type bufferedReader struct {
	in  *bufio.Reader
	out io.Writer
}

func newBufferedReader(in io.Reader, out io.Writer) *bufferedReader {
	return &bufferedReader{in: bufio.NewReader(in), out: out}
}

// ReadInput implements LineReader. A final line without a newline is
// returned before io.EOF.
func (r *bufferedReader) ReadInput(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	line, err := r.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptConfirmer asks yes/no questions through a LineReader.
type promptConfirmer struct {
	in LineReader
}

// Confirm implements app.Confirmer. Anything but y/yes is a no.
func (c promptConfirmer) Confirm(question string) bool {
	answer, err := c.in.ReadInput(WarningStyle.Render(question) + " [y/N]: ")
	if err != nil {
		return false
	}
	return isYes(answer)
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "д", "да":
		return true
	}
	return false
}

// confirmerFor returns the Confirmer for a one-shot command.
// SECURITY: destructive actions never proceed silently without --yes.
func confirmerFor(yes bool, in LineReader, interactive bool) (app.Confirmer, error) {
	if yes {
		return app.Always, nil
	}
	if !interactive {
		return nil, ErrTTYRequired
	}
	return promptConfirmer{in: in}, nil
}
