// Copyright (c) 2024–2026 The magnova developers. All rights reserved.
// Project site: https://github.com/gotmc/magnova
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package magnova

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultSCPIPort is the raw SCPI socket port on the Magnova.
const DefaultSCPIPort = 5025

// streamTransport frames SCPI traffic over a byte stream: commands are
// newline-terminated, text responses are read up to a newline, and binary
// responses arrive as IEEE-488.2 definite-length blocks.
type streamTransport struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader
}

// NewStreamTransport wraps a byte stream (serial port, socket) in a
// Transport.
func NewStreamTransport(rwc io.ReadWriteCloser) Transport {
	return &streamTransport{rwc: rwc, r: bufio.NewReader(rwc)}
}

// DialTCP connects to the instrument's raw SCPI socket. A bare host gets the
// default port appended.
func DialTCP(addr string) (Transport, error) {
	addr = withDefaultPort(addr)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("error connecting to scope at %s: %w", addr, err)
	}
	return NewStreamTransport(conn), nil
}

// withDefaultPort appends the default SCPI port to an address that lacks
// one. JoinHostPort brackets IPv6 literals such as ::1.
func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, strconv.Itoa(DefaultSCPIPort))
	}
	return addr
}

func (t *streamTransport) Write(cmd string) error {
	_, err := fmt.Fprintf(t.rwc, "%s\n", strings.TrimSpace(cmd))
	return err
}

func (t *streamTransport) Read() (string, error) {
	s, err := t.r.ReadString('\n')
	if err == io.EOF && s != "" {
		return s, nil
	}
	return s, err
}

// QueryBinary sends the command and reads back a definite-length block:
// '#', one digit giving the length of the length field, the decimal payload
// length, the payload, and a trailing newline.
func (t *streamTransport) QueryBinary(cmd string) ([]byte, error) {
	if err := t.Write(cmd); err != nil {
		return nil, err
	}
	head, err := t.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if head != '#' {
		return nil, fmt.Errorf("first byte of block response was %q, expected #", head)
	}
	d, err := t.r.ReadByte()
	if err != nil {
		return nil, err
	}
	digits := int(d - '0')
	if digits < 1 || digits > 9 {
		return nil, fmt.Errorf("invalid block length-field size %q", d)
	}
	lenField := make([]byte, digits)
	if _, err := io.ReadFull(t.r, lenField); err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(string(lenField))
	if err != nil {
		return nil, fmt.Errorf("bad block length %q: %w", lenField, err)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(t.r, payload); err != nil {
		return nil, err
	}
	// Consume the terminator following the block, if it has already arrived.
	// Blocking here would hang transports that never send one.
	if t.r.Buffered() > 0 {
		if b, _ := t.r.ReadByte(); b != '\n' {
			_ = t.r.UnreadByte()
		}
	}
	return payload, nil
}

func (t *streamTransport) Close() error { return t.rwc.Close() }
