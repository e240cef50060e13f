package sensors

import (
	"context"
	"time"

	"github.com/gr-butler/irlearner/env"
	"github.com/gr-butler/irlearner/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Transmitter drives an IR LED. Marks are a 50% duty carrier, spaces hold
// the pin low.
type Transmitter struct {
	pin     gpio.PinOut
	clock   clockwork.Clock
	carrier physic.Frequency
}

func NewTransmitter(name string) (*Transmitter, error) {
	p, err := lookupPin(name, "IR transmitter")
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, errors.Wrapf(err, "failed to set %v low", name)
	}
	return newTransmitter(p, clockwork.NewRealClock()), nil
}

func newTransmitter(pin gpio.PinOut, clock clockwork.Clock) *Transmitter {
	return &Transmitter{
		pin:     pin,
		clock:   clock,
		carrier: physic.Frequency(env.CarrierHz) * physic.Hertz,
	}
}

func (t *Transmitter) Halt() error {
	_ = t.pin.Out(gpio.Low)
	return t.pin.Halt()
}

// Send replays p. The pin is always left low, even when ctx is cancelled
// part way through.
func (t *Transmitter) Send(ctx context.Context, p protocol.Pulses) (err error) {
	defer func() {
		if lowErr := t.pin.Out(gpio.Low); lowErr != nil && err == nil {
			err = errors.Wrap(lowErr, "failed to release IR LED")
		}
	}()
	for i, us := range p {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i%2 == 0 {
			if err := t.pin.PWM(gpio.DutyHalf, t.carrier); err != nil {
				return errors.Wrapf(err, "mark %d", i)
			}
		} else {
			if err := t.pin.Out(gpio.Low); err != nil {
				return errors.Wrapf(err, "space %d", i)
			}
		}
		t.clock.Sleep(time.Duration(us) * time.Microsecond)
	}
	logger.Debugf("Sent [%v] pulses on [%v]", len(p), t.pin)
	return nil
}

// TestPattern is a NEC style header, eight alternating 0/1 bits and a stop
// mark. A receiver running the learner should tag it NEC.
func TestPattern() protocol.Pulses {
	p := protocol.Pulses{9000, 4500}
	for i := 0; i < 8; i++ {
		if i%2 == 0 {
			p = append(p, 560, 560)
		} else {
			p = append(p, 560, 1690)
		}
	}
	return append(p, 560)
}

func (t *Transmitter) SendTestPattern(ctx context.Context) error {
	logger.Info("Sending test pattern")
	return t.Send(ctx, TestPattern())
}
