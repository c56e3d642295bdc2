// Copyright (c) 2024–2026 The magnova developers. All rights reserved.
// Project site: https://github.com/gotmc/magnova
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package magnova

import (
	"bytes"
	"fmt"
	"testing"
)

// pipeRWC feeds scripted instrument output to the transport and captures
// what the transport writes.
type pipeRWC struct {
	in  *bytes.Buffer
	out bytes.Buffer
}

func (p *pipeRWC) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *pipeRWC) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p *pipeRWC) Close() error                { return nil }

func TestStreamTransportText(t *testing.T) {
	p := &pipeRWC{in: bytes.NewBufferString("Batronix,Magnova,12345,1.0\n")}
	tr := NewStreamTransport(p)

	if err := tr.Write("  *IDN?  "); err != nil {
		t.Fatal(err)
	}
	if got := p.out.String(); got != "*IDN?\n" {
		t.Errorf("wrote %q, want %q", got, "*IDN?\n")
	}
	resp, err := tr.Read()
	if err != nil {
		t.Fatal(err)
	}
	if resp != "Batronix,Magnova,12345,1.0\n" {
		t.Errorf("read %q", resp)
	}
}

func TestStreamTransportBinaryBlock(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef, 0x00}
	block := fmt.Sprintf("#1%d%s\n", len(payload), payload)
	p := &pipeRWC{in: bytes.NewBufferString(block)}
	tr := NewStreamTransport(p)

	got, err := tr.QueryBinary("CHANnel1:DATa:PACK? ALL, RAW")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = % x, want % x", got, payload)
	}
}

func TestStreamTransportBinaryBlockMultiDigit(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 123)
	var in bytes.Buffer
	in.WriteString("#3123")
	in.Write(payload)
	in.WriteByte('\n')
	tr := NewStreamTransport(&pipeRWC{in: &in})

	got, err := tr.QueryBinary("FFT1:DATA:PACKed?")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 123 {
		t.Errorf("payload length = %d, want 123", len(got))
	}
}

func TestStreamTransportBadBlockHeader(t *testing.T) {
	tr := NewStreamTransport(&pipeRWC{in: bytes.NewBufferString("oops\n")})
	if _, err := tr.QueryBinary("CHANnel1:DATa:PACK? ALL, V"); err == nil {
		t.Error("expected error for response without block header")
	}

	tr = NewStreamTransport(&pipeRWC{in: bytes.NewBufferString("#X12\n")})
	if _, err := tr.QueryBinary("CHANnel1:DATa:PACK? ALL, V"); err == nil {
		t.Error("expected error for invalid length-field size")
	}
}

func TestStreamTransportTruncatedBlock(t *testing.T) {
	// Declares 10 payload bytes but delivers 4.
	tr := NewStreamTransport(&pipeRWC{in: bytes.NewBufferString("#210abcd")})
	if _, err := tr.QueryBinary("CHANnel1:DATa:PACK? ALL, V"); err == nil {
		t.Error("expected error for truncated block payload")
	}
}

func TestWithDefaultPort(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"192.168.10.121", "192.168.10.121:5025"},
		{"192.168.10.121:5555", "192.168.10.121:5555"},
		{"scope.local", "scope.local:5025"},
		{"::1", "[::1]:5025"},
		{"[::1]:5555", "[::1]:5555"},
	}
	for _, tt := range tests {
		if got := withDefaultPort(tt.addr); got != tt.want {
			t.Errorf("withDefaultPort(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
