package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gr-butler/irlearner/env"
	"github.com/gr-butler/irlearner/protocol"
	"github.com/gr-butler/irlearner/store"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

var (
	ErrEmptyName = errors.New("command name is empty")
	ErrQuorum    = errors.New("not enough successful captures")
)

type capturer interface {
	Capture(ctx context.Context, timeout time.Duration) (protocol.Pulses, error)
}

type sender interface {
	Send(ctx context.Context, p protocol.Pulses) error
	SendTestPattern(ctx context.Context) error
}

type indicator interface {
	On()
	Off()
	Blink()
}

type publisher interface {
	Publish(ctx context.Context, cmd store.LearnedCommand) error
}

type irlearner struct {
	rx        capturer
	tx        sender
	led       indicator
	pub       publisher
	codes     *store.CodeStore
	codesPath string
	clock     clockwork.Clock
	out       io.Writer

	attempts int
	quorum   int
	timeout  time.Duration
	pause    time.Duration

	diagSamples int
}

func newLearner(rx capturer, codes *store.CodeStore, out io.Writer) *irlearner {
	return &irlearner{
		rx:        rx,
		codes:     codes,
		codesPath: env.CodesFile,
		clock:     clockwork.NewRealClock(),
		out:       out,
		attempts:  env.LearnAttempts,
		quorum:    env.LearnQuorum,
		timeout:   env.CaptureTimeout,
		pause:     env.AttemptPause,

		diagSamples: env.DiagnosticSamples,
	}
}

// Learn captures the same button press several times and stores the first
// good capture under name once enough attempts agree there was a signal.
// Every attempt runs even after the quorum is reached or becomes
// unreachable, so the operator always sees the same prompt sequence.
// Only ctx ends it early.
func (l *irlearner) Learn(ctx context.Context, name string) (store.LearnedCommand, error) {
	if strings.TrimSpace(name) == "" {
		return store.LearnedCommand{}, ErrEmptyName
	}
	logger.Infof("Learning [%v]", name)
	fmt.Fprintf(l.out, "\nLearning command: %s\n", name)

	var first protocol.Pulses
	successes := 0
	for attempt := 1; attempt <= l.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return store.LearnedCommand{}, err
		}
		fmt.Fprintf(l.out, "Sample %d/%d - press the button within %v...\n", attempt, l.attempts, l.timeout)

		p, err := l.capture(ctx)
		Prom_captures.WithLabelValues(captureResult(err)).Inc()
		switch {
		case err == nil:
			successes++
			if first == nil {
				first = p
			}
			fmt.Fprintf(l.out, "Captured signal with %d pulses\n", len(p))
		case isCancelled(err):
			return store.LearnedCommand{}, err
		default:
			logger.Debugf("Attempt [%v] for [%v] failed [%v]", attempt, name, err)
			fmt.Fprintf(l.out, "Failed to capture signal: %v\n", err)
		}

		if attempt < l.attempts {
			if err := l.wait(ctx); err != nil {
				return store.LearnedCommand{}, err
			}
		}
	}

	if successes < l.quorum {
		Prom_learns.WithLabelValues("quorum").Inc()
		fmt.Fprintf(l.out, "Failed to learn command: %s\n", name)
		return store.LearnedCommand{}, errors.Wrapf(ErrQuorum, "%d of %d captures for %v, need %d",
			successes, l.attempts, name, l.quorum)
	}

	cmd := store.LearnedCommand{
		Name:      name,
		Pulses:    first,
		Protocol:  protocol.Classify(first),
		LearnedAt: l.clock.Now(),
	}
	if cmd.Protocol == protocol.NEC {
		code, err := protocol.DecodeNEC(first)
		if err != nil {
			logger.Debugf("NEC header but no payload for [%v] [%v]", name, err)
		} else {
			cmd.Code = code
		}
	}
	l.codes.Put(cmd)
	Prom_learns.WithLabelValues("ok").Inc()
	Prom_learnedCommands.Set(float64(l.codes.Len()))
	logger.Infof("Learned [%v] as [%v] with [%v] pulses", name, cmd.Protocol, len(first))
	fmt.Fprintf(l.out, "Successfully learned command: %s (%s)\n", name, cmd.Protocol)

	if l.pub != nil {
		// failures are logged by the publisher and never undo the learn
		_ = l.pub.Publish(ctx, cmd)
	}
	return cmd, nil
}

func (l *irlearner) capture(ctx context.Context) (protocol.Pulses, error) {
	if l.led != nil {
		l.led.On()
		defer l.led.Off()
	}
	p, err := l.rx.Capture(ctx, l.timeout)
	if err == nil && l.led != nil {
		l.led.Blink()
	}
	return p, err
}

// wait gives the operator time to release and press the button again.
func (l *irlearner) wait(ctx context.Context) error {
	if l.pause <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(l.pause):
		return nil
	}
}

// Save writes the code store to its file. The in-memory store stays
// authoritative whether or not this succeeds.
func (l *irlearner) Save() error {
	if err := l.codes.Save(l.codesPath); err != nil {
		Prom_saves.WithLabelValues("error").Inc()
		return err
	}
	Prom_saves.WithLabelValues("ok").Inc()
	return nil
}

// Send replays a learned command on the IR LED.
func (l *irlearner) Send(ctx context.Context, name string) error {
	if l.tx == nil {
		return errors.New("no IR transmitter configured")
	}
	cmd, ok := l.codes.Get(name)
	if !ok {
		return errors.Errorf("no learned command called %q", name)
	}
	if err := l.tx.Send(ctx, cmd.Pulses); err != nil {
		return errors.Wrapf(err, "failed to send %v", name)
	}
	logger.Infof("Sent [%v]", name)
	return nil
}
