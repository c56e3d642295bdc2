// Package pack decodes the Magnova's packed binary payloads: waveform data
// returned by CHANx:DATA:PACK? and FFT traces returned by FFT1:DATA:PACKed?.
//
// Each payload is a fixed-width little-endian metadata header followed by a
// flat sample array. The header layouts are a strict contract with the
// instrument firmware; a field out of order silently corrupts every value
// after it, so the structs below must not be rearranged.
package pack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Variant selects the waveform transfer encoding.
type Variant int

const (
	// Voltage payloads carry 32-bit float samples already scaled to volts.
	Voltage Variant = iota
	// Raw payloads carry unsigned 16-bit quantized codes; the header's
	// VerticalStart/VerticalStep pair converts them to volts.
	Raw
)

func (v Variant) String() string {
	if v == Raw {
		return "RAW"
	}
	return "V"
}

// Metadata is the decoded waveform header. SampleStart, SampleLength,
// VerticalStart, and VerticalStep are only populated for the Raw variant.
type Metadata struct {
	TimeDelta     float32
	StartTime     float32
	EndTime       float32
	SampleStart   uint32
	SampleLength  uint32
	VerticalStart float32
	VerticalStep  float32
	SampleCount   uint32
}

// ErrShortBuffer reports a payload shorter than its declared header.
var ErrShortBuffer = errors.New("buffer shorter than packed header")

// voltageHeader is the 16-byte header of the voltage variant.
type voltageHeader struct {
	TimeDelta   float32
	StartTime   float32
	EndTime     float32
	SampleCount uint32
}

// rawHeader is the 32-byte header of the raw variant.
type rawHeader struct {
	TimeDelta     float32
	StartTime     float32
	EndTime       float32
	SampleStart   uint32
	SampleLength  uint32
	VerticalStart float32
	VerticalStep  float32
	SampleCount   uint32
}

const (
	voltageHeaderSize = 16
	rawHeaderSize     = 32
)

// Decode splits a packed waveform payload into its metadata header and
// physical-unit samples in volts. It performs no I/O and never guesses: a
// buffer shorter than the header or a sample area that is not a whole
// multiple of the element size is an error.
func Decode(buf []byte, v Variant) (Metadata, []float64, error) {
	switch v {
	case Voltage:
		return decodeVoltage(buf)
	case Raw:
		return decodeRaw(buf)
	default:
		return Metadata{}, nil, fmt.Errorf("unknown packed variant %d", v)
	}
}

func decodeVoltage(buf []byte) (Metadata, []float64, error) {
	var md Metadata
	if len(buf) < voltageHeaderSize {
		return md, nil, fmt.Errorf("%w: %d < %d bytes", ErrShortBuffer, len(buf), voltageHeaderSize)
	}
	var hdr voltageHeader
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &hdr); err != nil {
		return md, nil, err
	}
	md = Metadata{
		TimeDelta:   hdr.TimeDelta,
		StartTime:   hdr.StartTime,
		EndTime:     hdr.EndTime,
		SampleCount: hdr.SampleCount,
	}
	payload := buf[voltageHeaderSize:]
	if len(payload)%4 != 0 {
		return md, nil, fmt.Errorf("voltage payload of %d bytes is not a multiple of 4", len(payload))
	}
	samples := make([]float64, len(payload)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(payload[4*i:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return md, samples, nil
}

func decodeRaw(buf []byte) (Metadata, []float64, error) {
	var md Metadata
	if len(buf) < rawHeaderSize {
		return md, nil, fmt.Errorf("%w: %d < %d bytes", ErrShortBuffer, len(buf), rawHeaderSize)
	}
	var hdr rawHeader
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &hdr); err != nil {
		return md, nil, err
	}
	md = Metadata(hdr)
	payload := buf[rawHeaderSize:]
	if len(payload)%2 != 0 {
		return md, nil, fmt.Errorf("raw payload of %d bytes is not a multiple of 2", len(payload))
	}
	start := float64(hdr.VerticalStart)
	step := float64(hdr.VerticalStep)
	samples := make([]float64, len(payload)/2)
	for i := range samples {
		code := binary.LittleEndian.Uint16(payload[2*i:])
		samples[i] = start + float64(code)*step
	}
	return md, samples, nil
}

// TimeAxis reconstructs the time base for n samples: a linear interpolation
// from StartTime to EndTime, inclusive of both endpoints.
func (m Metadata) TimeAxis(n int) []float64 {
	return linspace(float64(m.StartTime), float64(m.EndTime), n)
}

// FFTResult is a decoded FFT trace. BinFrequency is carried through from the
// header for compatibility even though the axis reconstruction does not use
// it; the firmware populates it but the reference tooling never reads it.
type FFTResult struct {
	BinFrequency  float32
	StopFrequency float32
	BinCount      uint32
	Bins          []float64
}

const fftHeaderSize = 12

// DecodeFFT splits a packed FFT payload into its 12-byte header and
// magnitude bins.
func DecodeFFT(buf []byte) (FFTResult, error) {
	var r FFTResult
	if len(buf) < fftHeaderSize {
		return r, fmt.Errorf("%w: %d < %d bytes", ErrShortBuffer, len(buf), fftHeaderSize)
	}
	r.BinFrequency = math.Float32frombits(binary.LittleEndian.Uint32(buf[0:]))
	r.StopFrequency = math.Float32frombits(binary.LittleEndian.Uint32(buf[4:]))
	r.BinCount = binary.LittleEndian.Uint32(buf[8:])
	payload := buf[fftHeaderSize:]
	if len(payload)%4 != 0 {
		return r, fmt.Errorf("fft payload of %d bytes is not a multiple of 4", len(payload))
	}
	r.Bins = make([]float64, len(payload)/4)
	for i := range r.Bins {
		bits := binary.LittleEndian.Uint32(payload[4*i:])
		r.Bins[i] = float64(math.Float32frombits(bits))
	}
	return r, nil
}

// FrequencyAxis reconstructs the frequency base: a linear interpolation from
// 0 to StopFrequency across the decoded bins, inclusive of both endpoints.
func (r FFTResult) FrequencyAxis() []float64 {
	return linspace(0, float64(r.StopFrequency), len(r.Bins))
}

func linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}
