package sensors

import (
	"context"
	"fmt"
	"time"

	"github.com/gr-butler/irlearner/env"
	"github.com/gr-butler/irlearner/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

var (
	// ErrNoSignal covers every capture that did not produce a usable code.
	ErrNoSignal        = errors.New("no signal")
	ErrCaptureTimeout  = fmt.Errorf("%w: timed out waiting for a signal", ErrNoSignal)
	ErrCaptureTooShort = fmt.Errorf("%w: signal too short", ErrNoSignal)
)

// Receiver samples a demodulating IR receiver (e.g. VS1838B) whose output
// idles high and pulls low while it sees a 38kHz burst.
type Receiver struct {
	pin   gpio.PinIn
	clock clockwork.Clock
	idle  gpio.Level

	settlePulses int
	maxPulses    int
	minPulses    int
}

func NewReceiver(name string) (*Receiver, error) {
	p, err := lookupPin(name, "IR receiver")
	if err != nil {
		return nil, err
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, errors.Wrapf(err, "failed to set %v as input", name)
	}
	return newReceiver(p, clockwork.NewRealClock()), nil
}

func newReceiver(pin gpio.PinIn, clock clockwork.Clock) *Receiver {
	return &Receiver{
		pin:          pin,
		clock:        clock,
		idle:         gpio.High,
		settlePulses: env.SettlePulses,
		maxPulses:    env.MaxPulses,
		minPulses:    env.MinPulses,
	}
}

func (r *Receiver) String() string {
	return r.pin.String()
}

// Halt releases the receiver pin.
func (r *Receiver) Halt() error {
	return r.pin.Halt()
}

// Capture busy-polls the pin until the line leaves idle, then records the
// duration of every level in microseconds. It gives up after timeout,
// measured from the call. Recording stops early once more than settlePulses
// durations are held and the line is back at idle.
func (r *Receiver) Capture(ctx context.Context, timeout time.Duration) (protocol.Pulses, error) {
	start := r.clock.Now()

	// no delay between reads, a NEC bit is only 560us
	for r.pin.Read() == r.idle {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.clock.Since(start) > timeout {
			logger.Debugf("No signal on [%v] after [%v]", r.pin, timeout)
			return nil, ErrCaptureTimeout
		}
	}

	last := r.clock.Now()
	level := !r.idle
	pulses := make(protocol.Pulses, 0, r.settlePulses*2)

	for r.clock.Since(start) < timeout {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := r.pin.Read()
		if current == level {
			continue
		}
		now := r.clock.Now()
		pulses = append(pulses, int(now.Sub(last)/time.Microsecond))
		last = now
		level = current

		if len(pulses) > r.settlePulses && current == r.idle {
			break
		}
		if len(pulses) >= r.maxPulses {
			logger.Warnf("Capture on [%v] hit the [%v] pulse cap", r.pin, r.maxPulses)
			break
		}
	}

	if len(pulses) <= r.minPulses {
		logger.Debugf("Capture on [%v] too short [%v] pulses", r.pin, len(pulses))
		return nil, ErrCaptureTooShort
	}
	logger.Debugf("Captured [%v] pulses on [%v], header [%v]us", len(pulses), r.pin, pulses.Header())
	return pulses, nil
}
