// Package rest talks to the oscilloscope's built-in HTTP command endpoint.
// A SCPI command is POSTed as a JSON-encoded string to /scpi; queries return
// a JSON scalar or object, while set commands return an empty body with a
// non-200 status, which the endpoint uses to mean "no response expected"
// rather than failure.
package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultPort is the instrument's REST endpoint port.
const DefaultPort = 8080

// Client implements magnova.Transport over the REST endpoint. The endpoint
// is strictly request/response, so a query's reply is parked until a
// following Read pops it; parked replies form a FIFO queue guarded by a
// mutex, so concurrent callers never corrupt the queue. A caller that needs
// its Read matched to its own Write must still serialize the pair, the way
// the webcontrol proxy does.
type Client struct {
	base string
	hc   *http.Client

	mu      sync.Mutex
	pending []string
}

// NewClient creates a client for the instrument's REST endpoint.
func NewClient(host string, port int) *Client {
	if port == 0 {
		port = DefaultPort
	}
	return &Client{
		base: fmt.Sprintf("http://%s:%d/scpi", host, port),
		hc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientForURL creates a client for an explicit endpoint URL, used in
// tests and behind proxies.
func NewClientForURL(url string) *Client {
	return &Client{base: url, hc: &http.Client{Timeout: 30 * time.Second}}
}

// post sends the command and returns the response body and status code.
func (c *Client) post(cmd string) ([]byte, int, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.hc.Post(c.base, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("error posting %q: %w", cmd, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// IsQuery reports whether a SCPI command expects a response.
func IsQuery(cmd string) bool {
	return strings.HasSuffix(strings.TrimSpace(cmd), "?")
}

// Write sends a SCPI command. For a query the decoded response is parked for
// the next Read; for a set command any status is accepted, since the
// endpoint signals "nothing to return" with a non-200.
func (c *Client) Write(cmd string) error {
	body, status, err := c.post(cmd)
	if err != nil {
		return err
	}
	if !IsQuery(cmd) {
		return nil
	}
	if status != http.StatusOK {
		return fmt.Errorf("query %q failed with status %d", cmd, status)
	}
	c.mu.Lock()
	c.pending = append(c.pending, decodeScalar(body))
	c.mu.Unlock()
	return nil
}

// Read pops the oldest response parked by a query Write.
func (c *Client) Read() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return "", fmt.Errorf("no pending response")
	}
	resp := c.pending[0]
	c.pending = c.pending[1:]
	return resp, nil
}

// QueryBinary is unsupported: the REST endpoint returns packed data as JSON
// fields, not as a binary block. Use QueryPacked instead.
func (c *Client) QueryBinary(cmd string) ([]byte, error) {
	return nil, fmt.Errorf("rest transport has no binary transfer for %q, use QueryPacked", cmd)
}

// Close releases nothing; the HTTP client keeps no persistent state worth
// tearing down.
func (c *Client) Close() error { return nil }

// decodeScalar renders a JSON response body as the plain SCPI response
// string. Strings are unquoted; anything else passes through as its JSON
// text.
func decodeScalar(body []byte) string {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(body))
}

// PackedWaveform is the JSON shape of a packed waveform query on the REST
// endpoint. The metadata that the binary transfer packs into a fixed header
// arrives here as named fields.
type PackedWaveform struct {
	TimeDelta   float64   `json:"TimeDelta"`
	StartTime   float64   `json:"StartTime"`
	EndTime     float64   `json:"EndTime"`
	SampleCount int       `json:"SampleCount"`
	Samples     []float64 `json:"Samples"`
}

// TimeAxis reconstructs the time base for the samples, a linear
// interpolation from StartTime to EndTime inclusive of both endpoints.
func (w *PackedWaveform) TimeAxis() []float64 {
	n := len(w.Samples)
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = w.StartTime
		return out
	}
	step := (w.EndTime - w.StartTime) / float64(n-1)
	for i := range out {
		out[i] = w.StartTime + float64(i)*step
	}
	out[n-1] = w.EndTime
	return out
}

// QueryPacked runs a packed waveform query, e.g. "CHAN1:DATA:PACK?", and
// decodes the JSON response.
func (c *Client) QueryPacked(cmd string) (*PackedWaveform, error) {
	body, status, err := c.post(cmd)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("packed query %q failed with status %d", cmd, status)
	}
	var w PackedWaveform
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("bad packed response for %q: %w", cmd, err)
	}
	return &w, nil
}
