package led

import (
	"sync"
	"time"

	"github.com/gr-butler/irlearner/env"
	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// LED is a status indicator. A missing pin turns every call into a no-op so
// the learner runs the same with or without one fitted.
type LED struct {
	Name    string
	lock    sync.Mutex
	on      bool
	blink   chan struct{}
	done    chan struct{}
	once    sync.Once
	flash   time.Duration
	clock   clockwork.Clock
	gpioPin gpio.PinOut
}

func NewLED(name string, GPIOPin string) *LED {
	logger.Infof("Creating new LED on pin [%v] called [%v]", GPIOPin, name)
	var p gpio.PinOut
	if pin := gpioreg.ByName(GPIOPin); pin != nil {
		p = pin
	} else {
		logger.Errorf("Failed to find %v pin", GPIOPin)
	}
	l := newLED(name, p, clockwork.NewRealClock())
	l.Flicker(3)
	return l
}

func newLED(name string, p gpio.PinOut, clock clockwork.Clock) *LED {
	l := &LED{
		Name:    name,
		blink:   make(chan struct{}, 1),
		done:    make(chan struct{}),
		flash:   env.LEDFlashDuration,
		clock:   clock,
		gpioPin: p,
	}
	go func() {
		for {
			select {
			case <-l.blink:
				l.Flash()
			case <-l.done:
				return
			}
		}
	}()
	return l
}

func (l *LED) On() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.on = true
	l.out(gpio.High)
}

func (l *LED) Off() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.on = false
	l.out(gpio.Low)
}

func (l *LED) out(level gpio.Level) {
	if l.gpioPin != nil {
		_ = l.gpioPin.Out(level)
	}
}

// Flash inverts the LED briefly. A flash already in progress swallows the
// request.
func (l *LED) Flash() {
	if l.gpioPin == nil {
		return
	}
	if !l.lock.TryLock() {
		logger.Debugf("LED [%v] busy", l.Name)
		return
	}
	defer l.lock.Unlock()
	l.out(gpio.Level(!l.on))
	l.clock.Sleep(l.flash)
	l.out(gpio.Level(l.on))
}

// Blink queues a flash without waiting for it.
func (l *LED) Blink() {
	select {
	case l.blink <- struct{}{}:
	default:
	}
}

func (l *LED) Flicker(pulses int) {
	if l.gpioPin == nil {
		return
	}
	if pulses < 1 || pulses > 100 {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	for i := 0; i < pulses; i++ {
		l.out(gpio.High)
		l.clock.Sleep(l.flash)
		l.out(gpio.Low)
		l.clock.Sleep(l.flash)
	}
	l.out(gpio.Level(l.on))
}

// Close stops the blink goroutine and leaves the LED off. Safe to call more
// than once.
func (l *LED) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.Off()
	})
	return nil
}
