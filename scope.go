// Copyright (c) 2024–2026 The magnova developers. All rights reserved.
// Project site: https://github.com/gotmc/magnova
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package magnova drives a Batronix Magnova benchtop oscilloscope over SCPI.
// The instrument is reached through a Transport (raw TCP socket, USB serial,
// or the instrument's HTTP/REST command endpoint) and the package exposes the
// channel, measurement, trigger, and packed-data commands used by the example
// tools.
package magnova

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// Vendor is the marker expected in the *IDN? response when auto-discovering
// the instrument among other connected devices.
const Vendor = "Batronix"

// Transport is a request/response channel to the instrument. Write sends a
// SCPI command without waiting for a reply, Read returns the next pending
// text response, and QueryBinary sends a command whose reply is a raw byte
// payload rather than text.
type Transport interface {
	Write(cmd string) (err error)
	Read() (s string, err error)
	QueryBinary(cmd string) (b []byte, err error)
	Close() error
}

// Scope models the oscilloscope behind a Transport.
type Scope struct {
	Debug bool // if true, log every command and query before sending

	tr           Transport
	vdivs        int
	hdivs        int
	settle       time.Duration
	measTimeout  time.Duration
	measPoll     time.Duration
	minMeasCount int
}

// ScopeOption applies an option to the scope.
type ScopeOption func(*Scope)

// NewScope creates a scope on the given transport. Optionally scope
// configuration can be included using a ScopeOption.
func NewScope(tr Transport, opts ...ScopeOption) (*Scope, error) {
	s := Scope{
		tr:           tr,
		vdivs:        8,
		hdivs:        12,
		settle:       100 * time.Millisecond,
		measTimeout:  4 * time.Second,
		measPoll:     100 * time.Millisecond,
		minMeasCount: 5,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.vdivs < 1 || s.hdivs < 1 {
		return nil, fmt.Errorf("invalid display geometry %dx%d divisions", s.hdivs, s.vdivs)
	}
	return &s, nil
}

// WithDivisions sets the display geometry in grid divisions. The Magnova
// shows 8 vertical by 12 horizontal divisions.
func WithDivisions(vertical, horizontal int) ScopeOption {
	return func(s *Scope) {
		s.vdivs = vertical
		s.hdivs = horizontal
	}
}

// WithSettleDelay sets the pause after a scale or offset change, giving the
// instrument time to apply the new setting before the next command.
func WithSettleDelay(d time.Duration) ScopeOption {
	return func(s *Scope) { s.settle = d }
}

// WithMeasurementTimeout sets the hard limit on waiting for a measurement
// statistic to accumulate enough samples.
func WithMeasurementTimeout(d time.Duration) ScopeOption {
	return func(s *Scope) { s.measTimeout = d }
}

// WithMeasurementPoll sets the recheck interval used while waiting for
// measurement samples.
func WithMeasurementPoll(d time.Duration) ScopeOption {
	return func(s *Scope) { s.measPoll = d }
}

// WithDebug causes commands and responses to be logged.
func WithDebug() ScopeOption { return func(s *Scope) { s.Debug = true } }

// VerticalDivisions returns the display height in grid divisions.
func (s *Scope) VerticalDivisions() int { return s.vdivs }

// HorizontalDivisions returns the display width in grid divisions.
func (s *Scope) HorizontalDivisions() int { return s.hdivs }

// Command formats according to a format specifier if provided and sends a
// SCPI command to the instrument. Leading and trailing whitespace is removed;
// the transport is responsible for termination.
func (s *Scope) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	cmd = strings.TrimSpace(cmd)
	if s.Debug {
		log.Printf("cmd %q", cmd)
	}
	return s.tr.Write(cmd)
}

// Query sends the given SCPI query and returns the instrument's response with
// surrounding whitespace removed.
func (s *Scope) Query(cmd string) (string, error) {
	cmd = strings.TrimSpace(cmd)
	if s.Debug {
		log.Printf("query %q", cmd)
	}
	if err := s.tr.Write(cmd); err != nil {
		return "", fmt.Errorf("error writing query %q: %w", cmd, err)
	}
	resp, err := s.tr.Read()
	if err != nil {
		return "", fmt.Errorf("error reading response to %q: %w", cmd, err)
	}
	return strings.TrimSpace(resp), nil
}

// QueryBinary sends the given SCPI query and returns the raw byte payload of
// the response.
func (s *Scope) QueryBinary(cmd string) ([]byte, error) {
	cmd = strings.TrimSpace(cmd)
	if s.Debug {
		log.Printf("binary query %q", cmd)
	}
	return s.tr.QueryBinary(cmd)
}

// Identify returns the *IDN? identification string.
func (s *Scope) Identify() (string, error) {
	return s.Query("*IDN?")
}

// Reset sends *RST, returning the instrument to its default state.
func (s *Scope) Reset() error { return s.Command("*RST") }

// Run starts continuous acquisition.
func (s *Scope) Run() error { return s.Command("RUN") }

// Stop halts acquisition.
func (s *Scope) Stop() error { return s.Command("STOP") }

// Single arms a single acquisition.
func (s *Scope) Single() error { return s.Command("SINGLE") }

// SetAutoTrigger enables or disables auto triggering.
func (s *Scope) SetAutoTrigger(on bool) error {
	return s.Command("AUTO %d", boolInt(on))
}

// SetTimebase sets the horizontal scale in seconds per division.
func (s *Scope) SetTimebase(secPerDiv float64) error {
	return s.Command("TIMebase:SCALe %s", formatFloat(secPerDiv))
}

// SetTriggerEdgeSource selects the edge trigger source channel.
func (s *Scope) SetTriggerEdgeSource(channel int) error {
	return s.Command("TRIGger:EDGe:SOURce CHAN%d", channel)
}

// SetTriggerEdgeLevel sets the edge trigger level in volts.
func (s *Scope) SetTriggerEdgeLevel(volts float64) error {
	return s.Command("TRIGger:EDGe:LEVel %s", formatFloat(volts))
}

// SetAcquireMode selects the acquisition mode, e.g. "PDETect".
func (s *Scope) SetAcquireMode(mode string) error {
	return s.Command("ACQuire:MODE %s", mode)
}

// SetTimeExpansion sets the timebase expansion factor.
func (s *Scope) SetTimeExpansion(factor int) error {
	return s.Command("ACQuire:TEXPansion %d", factor)
}

// SetMemoryDepth sets the acquisition memory depth in samples.
func (s *Scope) SetMemoryDepth(samples int) error {
	return s.Command("ACQUire:MDEPth %d", samples)
}

// MemoryDepth returns the acquisition memory depth reported by the scope.
func (s *Scope) MemoryDepth() (string, error) {
	return s.Query("ACQuire:MDEPth?")
}

// SequenceWait blocks until the running acquisition sequence completes, up to
// the given number of seconds.
func (s *Scope) SequenceWait(seconds int) (string, error) {
	return s.Query(fmt.Sprintf("SEQUence:WAIT? %d", seconds))
}

// Close releases the transport.
func (s *Scope) Close() error { return s.tr.Close() }

// formatFloat renders a float in plain decimal notation. The instrument
// rejects scientific notation in some command arguments, so 2e-4 must be
// written as 0.0002.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func boolInt(on bool) int {
	if on {
		return 1
	}
	return 0
}
