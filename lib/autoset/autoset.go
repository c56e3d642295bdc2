// Package autoset converges each oscilloscope channel to a vertical scale
// where its signal fills the display without clipping, then picks a shared
// timebase and trigger from the dominant channel and spreads the active
// traces across the screen.
//
// The scale search, signal-center heuristic, and timebase selection are pure
// functions; the instrument is reached only through the Instrument interface
// so the engine can be exercised without hardware.
package autoset

import (
	"fmt"
	"log"
	"math"

	"go.uber.org/multierr"
)

// Instrument is the slice of the scope surface the engine drives.
// *magnova.Scope satisfies it.
type Instrument interface {
	EnableChannel(channel int, on bool) error
	SetScaleOffset(channel int, voltsPerDiv, offset float64) error
	Measure(channel int) (mid, vpp, freq float64, err error)
	SetTimebase(secPerDiv float64) error
	SetTriggerEdgeSource(channel int) error
	SetTriggerEdgeLevel(volts float64) error
}

// NoiseFloor is the peak-to-peak amplitude below which a channel is treated
// as carrying no signal. Scaling up a floating input only amplifies noise.
const NoiseFloor = 0.1

// Measurement is a channel's snapshot after convergence. Scale is the
// vertical volts per division in effect when the values were read.
type Measurement struct {
	Mid   float64
	VPP   float64
	Freq  float64
	Scale float64
}

// Ladder is an ordered descending sequence of allowed volts-per-division
// settings.
type Ladder []float64

// DefaultLadder matches the Magnova's vertical scale steps.
var DefaultLadder = Ladder{6.0, 2.0, 1.0, 0.5, 0.2, 0.1, 0.05}

// Validate checks that the ladder is strictly decreasing and positive.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("empty scale ladder")
	}
	for i, s := range l {
		if s <= 0 {
			return fmt.Errorf("scale ladder entry %d is %g, must be positive", i, s)
		}
		if i > 0 && s >= l[i-1] {
			return fmt.Errorf("scale ladder not strictly decreasing at entry %d", i)
		}
	}
	return nil
}

// CoarsestFit returns the smallest ladder entry whose full-screen span
// exceeds the given peak-to-peak amplitude. Scanning from the finest scale
// upward yields the tightest fit that still avoids clipping, maximizing
// vertical resolution. ok is false when even the coarsest entry cannot
// contain the signal.
func (l Ladder) CoarsestFit(vpp float64, divisions int) (scale float64, ok bool) {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i]*float64(divisions) > vpp {
			return l[i], true
		}
	}
	return 0, false
}

// AtLeast returns the smallest ladder entry greater than or equal to the
// ideal scale. ok is false when the ideal exceeds every entry.
func (l Ladder) AtLeast(ideal float64) (scale float64, ok bool) {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i] >= ideal {
			return l[i], true
		}
	}
	return 0, false
}

// StandardTimebases is the ascending sequence of seconds-per-division
// settings the instrument accepts, from 1 ns to 50 s in 1-2-5 steps.
var StandardTimebases = []float64{
	1e-9, 2e-9, 5e-9,
	1e-8, 2e-8, 5e-8,
	1e-7, 2e-7, 5e-7,
	1e-6, 2e-6, 5e-6,
	1e-5, 2e-5, 5e-5,
	1e-4, 2e-4, 5e-4,
	1e-3, 2e-3, 5e-3,
	1e-2, 2e-2, 5e-2,
	1e-1, 2e-1, 5e-1,
	1, 2, 5,
	10, 20, 50,
}

// periodsShown is the fraction of signal periods the timebase should fit on
// screen.
const periodsShown = 1.25

// TimePerDivision picks the first standard timebase that shows at least 1.25
// periods of a signal at the given frequency across the display. A
// non-positive frequency falls back to 1 ms/div; a frequency too low for any
// standard value gets the slowest one.
func TimePerDivision(freq float64, horizontalDivisions int) float64 {
	if freq <= 0 {
		return 1e-3
	}
	for _, tb := range StandardTimebases {
		if tb*float64(horizontalDivisions)*freq >= periodsShown {
			return tb
		}
	}
	return StandardTimebases[len(StandardTimebases)-1]
}

// SignalCenter picks the voltage to treat as the middle of a signal. The
// instrument's mid-level read is unreliable for asymmetric or offset
// signals, so when it strays from half the peak-to-peak amplitude by more
// than 10% of that amplitude, half peak-to-peak wins.
func SignalCenter(mid, vpp float64) float64 {
	half := vpp / 2
	if math.Abs(mid-half) > vpp*0.1 {
		return half
	}
	return mid
}

// Engine runs the autoset flow against an Instrument.
type Engine struct {
	inst     Instrument
	ladder   Ladder
	vdivs    int
	hdivs    int
	channels []int
}

// Option applies an option to the engine.
type Option func(*Engine)

// WithLadder replaces the vertical scale ladder.
func WithLadder(l Ladder) Option { return func(e *Engine) { e.ladder = l } }

// WithDivisions sets the display geometry in grid divisions.
func WithDivisions(vertical, horizontal int) Option {
	return func(e *Engine) {
		e.vdivs = vertical
		e.hdivs = horizontal
	}
}

// WithChannels sets the channels the engine converges, in display order.
func WithChannels(channels ...int) Option {
	return func(e *Engine) { e.channels = channels }
}

// New creates an engine for the instrument. Defaults: the Magnova ladder,
// an 8x12 division display, channels 1-4.
func New(inst Instrument, opts ...Option) (*Engine, error) {
	e := Engine{
		inst:     inst,
		ladder:   DefaultLadder,
		vdivs:    8,
		hdivs:    12,
		channels: []int{1, 2, 3, 4},
	}
	for _, opt := range opts {
		opt(&e)
	}
	if err := e.ladder.Validate(); err != nil {
		return nil, err
	}
	if e.vdivs < 1 || e.hdivs < 1 {
		return nil, fmt.Errorf("invalid display geometry %dx%d divisions", e.hdivs, e.vdivs)
	}
	if len(e.channels) == 0 {
		return nil, fmt.Errorf("no channels to converge")
	}
	return &e, nil
}

// Run converges every configured channel, then aligns the active ones
// horizontally and vertically. The returned map holds one Measurement per
// channel, nil for channels without a usable signal. A failing channel is
// skipped and its error aggregated; alignment still runs over the channels
// that converged.
func (e *Engine) Run() (map[int]*Measurement, error) {
	results := make(map[int]*Measurement, len(e.channels))
	var errs error
	for _, ch := range e.channels {
		if err := e.inst.EnableChannel(ch, true); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channel %d: %w", ch, err))
			results[ch] = nil
			continue
		}
		m, err := e.Converge(ch)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channel %d: %w", ch, err))
			results[ch] = nil
			continue
		}
		results[ch] = m
	}
	errs = multierr.Append(errs, e.AlignHorizontal(results))
	errs = multierr.Append(errs, e.AlignVertical(results))
	return results, errs
}

// Converge walks the channel down the scale ladder until the signal fills
// its target fraction of the display. Returns nil when the channel carries
// no usable signal; the channel is then disabled on the instrument.
//
// The loop is a fixed-point iteration over a finite descending ladder: the
// selected scale never increases, so it terminates within len(ladder)
// iterations.
func (e *Engine) Converge(channel int) (*Measurement, error) {
	coarse := e.ladder[0]
	if err := e.inst.SetScaleOffset(channel, coarse, 0); err != nil {
		return nil, err
	}
	mid, vpp, _, err := e.inst.Measure(channel)
	if err != nil {
		return nil, err
	}
	if vpp < NoiseFloor {
		return nil, e.deactivate(channel, vpp)
	}

	// Re-centering shifts the measured mid-level slightly, so measure again
	// before trusting the values.
	if err := e.inst.SetScaleOffset(channel, coarse, -mid); err != nil {
		return nil, err
	}
	mid, vpp, freq, err := e.inst.Measure(channel)
	if err != nil {
		return nil, err
	}
	if vpp < NoiseFloor {
		return nil, e.deactivate(channel, vpp)
	}

	current := coarse
	for range e.ladder[1:] {
		next, ok := e.ladder.CoarsestFit(vpp, e.vdivs)
		if !ok || next == current {
			break
		}
		log.Printf("channel %d: trying %gV/div", channel, next)
		if err := e.inst.SetScaleOffset(channel, next, -mid); err != nil {
			return nil, err
		}
		mid, vpp, freq, err = e.inst.Measure(channel)
		if err != nil {
			return nil, err
		}
		if vpp < NoiseFloor {
			return nil, e.deactivate(channel, vpp)
		}
		current = next
	}
	return &Measurement{Mid: mid, VPP: vpp, Freq: freq, Scale: current}, nil
}

// deactivate turns off a channel whose signal fell below the noise floor.
// Not an error: a silent input is a defined terminal state.
func (e *Engine) deactivate(channel int, vpp float64) error {
	log.Printf("channel %d disabled, negligible signal (Vpp=%gV)", channel, vpp)
	return e.inst.EnableChannel(channel, false)
}

// active returns the converged channels in engine channel order.
func (e *Engine) active(results map[int]*Measurement) []int {
	var chans []int
	for _, ch := range e.channels {
		if results[ch] != nil {
			chans = append(chans, ch)
		}
	}
	return chans
}

// AlignHorizontal sets the shared timebase and trigger from the dominant
// channel, the active channel with the largest peak-to-peak amplitude. With
// no active channels it logs and does nothing.
func (e *Engine) AlignHorizontal(results map[int]*Measurement) error {
	chans := e.active(results)
	if len(chans) == 0 {
		log.Print("horizontal alignment skipped, no active channels")
		return nil
	}
	dominant := chans[0]
	for _, ch := range chans[1:] {
		if results[ch].VPP > results[dominant].VPP {
			dominant = ch
		}
	}
	m := results[dominant]

	tb := TimePerDivision(m.Freq, e.hdivs)
	if err := e.inst.SetTimebase(tb); err != nil {
		return err
	}
	level := SignalCenter(m.Mid, m.VPP)
	if err := e.inst.SetTriggerEdgeSource(dominant); err != nil {
		return err
	}
	if err := e.inst.SetTriggerEdgeLevel(level); err != nil {
		return err
	}
	log.Printf("timebase %gs/div, trigger channel %d at %gV", tb, dominant, level)
	return nil
}

// AlignVertical spreads the active channels across the display: each gets an
// equal share of the vertical divisions, bands ordered channel-first from
// the top, and a scale that fits its signal inside that share. With no
// active channels it logs and does nothing.
func (e *Engine) AlignVertical(results map[int]*Measurement) error {
	chans := e.active(results)
	if len(chans) == 0 {
		log.Print("vertical alignment skipped, no active channels")
		return nil
	}
	n := len(chans)
	share := float64(e.vdivs) / float64(n)
	for idx, ch := range chans {
		m := results[ch]
		// Band centers are evenly spaced and symmetric about zero; the first
		// active channel takes the top band.
		band := float64(n-1-idx)
		position := (band - float64(n-1)/2) / float64(n) * float64(e.vdivs)

		scale, ok := e.ladder.AtLeast(m.VPP / share)
		if !ok {
			scale = e.ladder[0]
			log.Printf("channel %d: Vpp %gV exceeds the scale ladder, using %gV/div", ch, m.VPP, scale)
		}
		offset := position*scale - SignalCenter(m.Mid, m.VPP)
		if err := e.inst.SetScaleOffset(ch, scale, offset); err != nil {
			return err
		}
		log.Printf("channel %d: %gV/div at %+.2f div", ch, scale, position)
	}
	return nil
}
