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

// Package sizefmt renders byte counts for progress bars and log lines.
// model.FormatSizeSI owns the two-decimal SI form the scan report is
// required to emit; this package is for everything else that just wants a
// friendly "3.2 MB" without that exactness guarantee.
package sizefmt

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Bytes renders n the way a progress bar or log line wants it: "1.2 MB",
// "340 kB", etc.
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}

// Rate renders a throughput in bytes/second as "12 MB/s".
func Rate(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return humanize.Bytes(uint64(bytesPerSecond)) + "/s"
}

// ETA renders a remaining duration as a rounded "2m30s"/"45s" string,
// "unknown" if secondsRemaining is negative or not a number.
func ETA(secondsRemaining float64) string {
	if secondsRemaining < 0 || secondsRemaining != secondsRemaining { // NaN guard
		return "unknown"
	}
	return time.Duration(secondsRemaining * float64(time.Second)).Round(time.Second).String()
}
