// Copyright (c) 2024–2026 The magnova developers. All rights reserved.
// Project site: https://github.com/gotmc/magnova
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package magnova

import (
	"fmt"
	"log"
	"time"

	"github.com/gotmc/query"
)

// NumChannels is the number of analog input channels on the Magnova.
const NumChannels = 4

// DataFormat selects the packed transfer variant for waveform data.
type DataFormat string

// Available packed transfer variants. Voltage transfers 32-bit float samples
// already scaled to volts; Raw transfers 16-bit quantized codes plus a linear
// calibration pair in the header.
const (
	Voltage DataFormat = "V"
	Raw     DataFormat = "RAW"
)

// EnableChannel switches the given channel's display state on or off.
func (s *Scope) EnableChannel(channel int, on bool) error {
	return s.Command("CHANnel%d:STATe %d", channel, boolInt(on))
}

// SetScaleOffset applies a vertical scale in volts per division and an offset
// in volts to the given channel, then waits for the instrument to settle.
func (s *Scope) SetScaleOffset(channel int, voltsPerDiv, offset float64) error {
	if err := s.Command("CHANnel%d:SCALe %s", channel, formatFloat(voltsPerDiv)); err != nil {
		return err
	}
	if err := s.Command("CHANnel%d:OFFSet %s", channel, formatFloat(offset)); err != nil {
		return err
	}
	time.Sleep(s.settle)
	return nil
}

// ProbeDivisor returns the probe divisor configured for the channel. Voltage
// measurements read from the instrument must be multiplied by this factor.
func (s *Scope) ProbeDivisor(channel int) (float64, error) {
	return query.Float64f(s, "CHANnel%d:DIVisor?", channel)
}

// SetDataFormat selects the packed transfer variant used for subsequent
// waveform data queries on the channel.
func (s *Scope) SetDataFormat(channel int, format DataFormat) error {
	return s.Command("CHANnel%d:DATa:TYPE %s", channel, format)
}

// ChannelData requests packed waveform data for the channel and returns the
// raw payload. Length is either "ALL" or a specific sample count.
func (s *Scope) ChannelData(channel int, length string, format DataFormat) ([]byte, error) {
	return s.QueryBinary(
		fmt.Sprintf("CHANnel%d:DATa:PACK? %s, %s", channel, length, format),
	)
}

// SetFFT enables or disables the FFT math trace.
func (s *Scope) SetFFT(on bool) error {
	return s.Command("FFT1:STATe %d", boolInt(on))
}

// SetFFTSource selects the channel feeding the FFT math trace.
func (s *Scope) SetFFTSource(channel int) error {
	return s.Command("FFT1:SOURce CHANnel%d", channel)
}

// FFTData requests the packed FFT trace and returns the raw payload.
func (s *Scope) FFTData() ([]byte, error) {
	return s.QueryBinary("FFT1:DATA:PACKed?")
}

// AcquireWaveform captures packed waveform data for a single channel: the
// target channel is enabled, the others disabled, a bounded memory depth set
// so the transfer stays quick, and a single acquisition triggered before the
// packed payload is read back. The payload decodes with lib/pack.
func (s *Scope) AcquireWaveform(channel int, length string, format DataFormat) ([]byte, error) {
	if err := s.EnableChannel(channel, true); err != nil {
		return nil, err
	}
	for ch := 1; ch <= NumChannels; ch++ {
		if ch == channel {
			continue
		}
		if err := s.EnableChannel(ch, false); err != nil {
			return nil, err
		}
	}
	// Auto trigger so the capture completes even without a trigger event.
	if err := s.SetAutoTrigger(true); err != nil {
		return nil, err
	}
	if err := s.Run(); err != nil {
		return nil, err
	}
	if err := s.SetMemoryDepth(100000); err != nil {
		return nil, err
	}
	// Read the depth back: the instrument may clamp the requested value.
	depth, err := s.MemoryDepth()
	if err != nil {
		return nil, err
	}
	log.Printf("memory depth: %s", depth)
	if err := s.SetDataFormat(channel, format); err != nil {
		return nil, err
	}
	if _, err := s.SequenceWait(1); err != nil {
		return nil, err
	}
	if err := s.Single(); err != nil {
		return nil, err
	}
	return s.ChannelData(channel, length, format)
}

// AcquireFFT captures the packed FFT trace for a single channel. The payload
// decodes with lib/pack.
func (s *Scope) AcquireFFT(channel int) ([]byte, error) {
	if err := s.SetFFT(true); err != nil {
		return nil, err
	}
	if err := s.SetFFTSource(channel); err != nil {
		return nil, err
	}
	if err := s.Run(); err != nil {
		return nil, err
	}
	time.Sleep(500 * time.Millisecond)
	return s.FFTData()
}
