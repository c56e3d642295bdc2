// Copyright (c) 2024–2026 The magnova developers. All rights reserved.
// Project site: https://github.com/gotmc/magnova
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package magnova

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// fakeTransport records written commands and serves scripted responses keyed
// by command prefix.
type fakeTransport struct {
	writes  []string
	respond func(cmd string) (string, bool)
	pending []string
	closed  bool
}

func (f *fakeTransport) Write(cmd string) error {
	f.writes = append(f.writes, cmd)
	if f.respond != nil {
		if resp, ok := f.respond(cmd); ok {
			f.pending = append(f.pending, resp)
		}
	}
	return nil
}

func (f *fakeTransport) Read() (string, error) {
	if len(f.pending) == 0 {
		return "", fmt.Errorf("no scripted response")
	}
	s := f.pending[0]
	f.pending = f.pending[1:]
	return s, nil
}

func (f *fakeTransport) QueryBinary(cmd string) ([]byte, error) {
	f.writes = append(f.writes, cmd)
	return nil, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func newTestScope(t *testing.T, tr Transport) *Scope {
	t.Helper()
	s, err := NewScope(tr,
		WithSettleDelay(0),
		WithMeasurementTimeout(50*time.Millisecond),
		WithMeasurementPoll(time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCommandFormatting(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestScope(t, tr)

	if err := s.SetScaleOffset(2, 0.0002, -1.5); err != nil {
		t.Fatal(err)
	}
	want := []string{"CHANnel2:SCALe 0.0002", "CHANnel2:OFFSet -1.5"}
	if len(tr.writes) != 2 || tr.writes[0] != want[0] || tr.writes[1] != want[1] {
		t.Errorf("writes = %v, want %v", tr.writes, want)
	}
}

func TestFormatFloatPlainNotation(t *testing.T) {
	for _, tt := range []struct {
		in   float64
		want string
	}{
		{2e-4, "0.0002"},
		{1e-9, "0.000000001"},
		{50, "50"},
		{-0.05, "-0.05"},
	} {
		if got := formatFloat(tt.in); got != tt.want {
			t.Errorf("formatFloat(%g) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMeasureAppliesDivisor(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = func(cmd string) (string, bool) {
		switch {
		case strings.HasSuffix(cmd, "DIVisor?"):
			return "10", true
		case strings.Contains(cmd, "COUNt?"):
			return "6.0", true
		case strings.Contains(cmd, "VMID:AVERage?"):
			return "0.12", true
		case strings.Contains(cmd, "VPP:AVERage?"):
			return "0.35", true
		case strings.Contains(cmd, "HFREQ:AVERage?"):
			return "1000", true
		}
		return "", false
	}
	s := newTestScope(t, tr)

	mid, vpp, freq, err := s.Measure(1)
	if err != nil {
		t.Fatalf("Measure returned error: %s", err)
	}
	// Voltage statistics carry the probe divisor; frequency does not.
	if mid != 1.2 || vpp != 3.5 || freq != 1000 {
		t.Errorf("Measure = %g, %g, %g", mid, vpp, freq)
	}

	joined := strings.Join(tr.writes, "\n")
	for _, want := range []string{
		"MEASurement:VMID:ADD CHAN1",
		"MEASurement:VPP:ADD CHAN1",
		"MEASurement:HFREQ:ADD CHAN1",
		"MEASurement:VMID:REMove CHAN1",
		"MEASurement:VPP:REMove CHAN1",
		"MEASurement:HFREQ:REMove CHAN1",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing command %q", want)
		}
	}
}

func TestMeasureTimeoutNotFatal(t *testing.T) {
	tr := &fakeTransport{}
	tr.respond = func(cmd string) (string, bool) {
		switch {
		case strings.HasSuffix(cmd, "DIVisor?"):
			return "1", true
		case strings.Contains(cmd, "COUNt?"):
			return "0", true // never enough samples
		case strings.Contains(cmd, "AVERage?"):
			return "0.25", true
		}
		return "", false
	}
	s := newTestScope(t, tr)

	// The wait times out but the averages are still read.
	_, vpp, _, err := s.Measure(3)
	if err != nil {
		t.Fatalf("Measure returned error after timeout: %s", err)
	}
	if vpp != 0.25 {
		t.Errorf("vpp = %g, want 0.25", vpp)
	}
}

func TestNewScopeRejectsBadGeometry(t *testing.T) {
	if _, err := NewScope(&fakeTransport{}, WithDivisions(0, 12)); err == nil {
		t.Error("expected error for zero vertical divisions")
	}
}

func TestAcquireWaveformSequence(t *testing.T) {
	tr := &fakeTransport{
		respond: func(cmd string) (string, bool) {
			switch {
			case strings.Contains(cmd, "MDEPth?"):
				return "100000", true
			case strings.Contains(cmd, "SEQUence:WAIT?"):
				return "1", true
			}
			return "", false
		},
	}
	s := newTestScope(t, tr)

	if _, err := s.AcquireWaveform(2, "ALL", Raw); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"CHANnel2:STATe 1",
		"CHANnel1:STATe 0",
		"CHANnel3:STATe 0",
		"CHANnel4:STATe 0",
		"AUTO 1",
		"RUN",
		"ACQUire:MDEPth 100000",
		"ACQuire:MDEPth?",
		"CHANnel2:DATa:TYPE RAW",
		"SEQUence:WAIT? 1",
		"SINGLE",
		"CHANnel2:DATa:PACK? ALL, RAW",
	}
	if len(tr.writes) != len(want) {
		t.Fatalf("wrote %d commands, want %d: %v", len(tr.writes), len(want), tr.writes)
	}
	for i, cmd := range want {
		if tr.writes[i] != cmd {
			t.Errorf("command %d = %q, want %q", i, tr.writes[i], cmd)
		}
	}
}
