// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package pbar renders a single-line progress bar driven by the
// orchestrator/recover's fraction-based Progress callback (spec.md §6:
// "msg string, fraction float64"), rather than a byte-count total known up
// front.
package pbar

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nullsector/volrecover/pkg/sizefmt"
)

const MinRefreshRate = time.Millisecond * 500

// State tracks what's needed to render the bar and estimate an ETA from
// fraction-per-second progress, since scan/recover report completion as a
// fraction rather than bytes processed.
type State struct {
	StartTime      time.Time
	FilesFound     int
	LastUpdateTime time.Time
	LastFraction   float64
}

// NewState initializes a State ready for its first Render.
func NewState() *State {
	return &State{
		StartTime:      time.Now(),
		LastUpdateTime: time.Unix(0, 0),
	}
}

// FileFound increments the files-found counter a Callbacks.FileFound hook
// reports through.
func (s *State) FileFound() {
	s.FilesFound++
}

// Render prints the current line for msg/fraction. A negative fraction
// means "no progress, just a status line" (spec.md's Progress convention
// for a fatal/aborting message) and is rendered without a bar. force skips
// the MinRefreshRate throttle, for the final call.
func (s *State) Render(msg string, fraction float64, force bool) {
	if !force && !s.LastUpdateTime.IsZero() && time.Since(s.LastUpdateTime) < MinRefreshRate {
		return
	}

	if fraction < 0 {
		fmt.Fprintf(os.Stdout, "\r[INFO] %s | Files Found: %d                              \n", msg, s.FilesFound)
		return
	}

	const barLength = 20
	filledLen := int(float64(barLength) * fraction)
	if filledLen > barLength {
		filledLen = barLength
	}
	var bar string
	if filledLen >= barLength {
		bar = strings.Repeat("=", barLength)
	} else {
		bar = strings.Repeat("=", filledLen) + ">" + strings.Repeat(" ", barLength-filledLen-1)
	}

	elapsed := time.Since(s.LastUpdateTime).Seconds()
	rate := (fraction - s.LastFraction) / elapsed // fraction/sec

	etaStr := "calculating..."
	if fraction > 0 && rate > 0 {
		remaining := (1 - fraction) / rate
		etaStr = sizefmt.ETA(remaining) + " remaining"
	}

	s.LastUpdateTime = time.Now()
	s.LastFraction = fraction

	fmt.Fprintf(os.Stdout, "\r[INFO] %s: [%s] %3.0f%% | Files Found: %d | %s    ",
		msg, bar, fraction*100, s.FilesFound, etaStr)
}

// Finish moves the cursor past the bar, leaving it on screen.
func (s *State) Finish() {
	fmt.Println()
}
