// Copyright (c) 2024–2026 The magnova developers. All rights reserved.
// Project site: https://github.com/gotmc/magnova
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package magnova

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gotmc/query"
	"go.uber.org/multierr"
)

// MeasurementKind names a statistic the instrument can accumulate for a
// channel.
type MeasurementKind string

// Measurement kinds used by the auto-ranging flow.
const (
	VMid  MeasurementKind = "VMID"  // midpoint voltage
	VPP   MeasurementKind = "VPP"   // peak-to-peak voltage
	HFreq MeasurementKind = "HFREQ" // signal frequency
)

// AddMeasurement registers a measurement statistic for the channel.
func (s *Scope) AddMeasurement(kind MeasurementKind, channel int) error {
	return s.Command("MEASurement:%s:ADD CHAN%d", kind, channel)
}

// RemoveMeasurement deregisters a measurement statistic for the channel.
func (s *Scope) RemoveMeasurement(kind MeasurementKind, channel int) error {
	return s.Command("MEASurement:%s:REMove CHAN%d", kind, channel)
}

// MeasurementCount returns the number of samples accumulated for the
// statistic so far.
func (s *Scope) MeasurementCount(kind MeasurementKind, channel int) (int, error) {
	resp, err := query.Stringf(s, "MEASurement:%s:COUNt? CHAN%d", kind, channel)
	if err != nil {
		return 0, err
	}
	// The count comes back as a float, e.g. "5.0".
	f, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s count %q: %w", kind, resp, err)
	}
	return int(f), nil
}

// MeasurementAverage returns the averaged value of the statistic.
func (s *Scope) MeasurementAverage(kind MeasurementKind, channel int) (float64, error) {
	return query.Float64f(s, "MEASurement:%s:AVERage? CHAN%d", kind, channel)
}

// waitForMeasurements polls the sample count for the statistic until enough
// samples have accumulated or the measurement timeout elapses. A transient
// zero count is normal right after the statistic is added, so the poll keeps
// rechecking rather than failing fast.
func (s *Scope) waitForMeasurements(kind MeasurementKind, channel int) (bool, error) {
	deadline := time.Now().Add(s.measTimeout)
	for time.Now().Before(deadline) {
		count, err := s.MeasurementCount(kind, channel)
		if err != nil {
			return false, err
		}
		if count >= s.minMeasCount {
			return true, nil
		}
		time.Sleep(s.measPoll)
	}
	return false, nil
}

// Measure takes a mid-level, peak-to-peak, and frequency snapshot of the
// channel. The three statistics are registered, allowed to accumulate, read
// back as averages with the probe divisor applied to the voltage values, and
// deregistered again. A timeout while waiting for samples is logged and the
// last available values are used.
func (s *Scope) Measure(channel int) (mid, vpp, freq float64, err error) {
	divisor, err := s.ProbeDivisor(channel)
	if err != nil {
		return 0, 0, 0, err
	}

	kinds := []MeasurementKind{VMid, VPP, HFreq}
	for _, kind := range kinds {
		if err := s.AddMeasurement(kind, channel); err != nil {
			return 0, 0, 0, err
		}
	}
	defer func() {
		for _, kind := range kinds {
			err = multierr.Append(err, s.RemoveMeasurement(kind, channel))
		}
	}()

	for _, kind := range kinds {
		ready, werr := s.waitForMeasurements(kind, channel)
		if werr != nil {
			return 0, 0, 0, werr
		}
		if !ready {
			log.Printf("timeout waiting for %s samples on channel %d, using last value", kind, channel)
		}
	}

	if mid, err = s.MeasurementAverage(VMid, channel); err != nil {
		return 0, 0, 0, err
	}
	if vpp, err = s.MeasurementAverage(VPP, channel); err != nil {
		return 0, 0, 0, err
	}
	if freq, err = s.MeasurementAverage(HFreq, channel); err != nil {
		return 0, 0, 0, err
	}
	mid *= divisor
	vpp *= divisor
	log.Printf("channel %d: Vmid=%gV Vpp=%gV freq=%gHz", channel, mid, vpp, freq)
	return mid, vpp, freq, nil
}
