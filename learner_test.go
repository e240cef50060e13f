package main

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gr-butler/irlearner/protocol"
	"github.com/gr-butler/irlearner/sensors"
	"github.com/gr-butler/irlearner/store"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var powerOn = protocol.Pulses{9000, 4500, 560, 560, 560, 1690, 560, 560, 560, 1690, 560}

type attempt struct {
	p   protocol.Pulses
	err error
}

func captured(p protocol.Pulses) attempt { return attempt{p: p} }

var (
	timedOut = attempt{err: sensors.ErrCaptureTimeout}
	tooShort = attempt{err: sensors.ErrCaptureTooShort}
)

// fakeCapturer plays back attempts in order, then times out.
type fakeCapturer struct {
	mu        sync.Mutex
	attempts  []attempt
	calls     int
	onCapture func(n int)
}

func (f *fakeCapturer) Capture(ctx context.Context, _ time.Duration) (protocol.Pulses, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.onCapture != nil {
		f.onCapture(n)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n > len(f.attempts) {
		return nil, sensors.ErrCaptureTimeout
	}
	a := f.attempts[n-1]
	return a.p.Clone(), a.err
}

func (f *fakeCapturer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	got []store.LearnedCommand
	err error
}

func (f *fakePublisher) Publish(_ context.Context, cmd store.LearnedCommand) error {
	f.got = append(f.got, cmd)
	return f.err
}

type fakeIndicator struct {
	on, off, blink int
}

func (f *fakeIndicator) On()    { f.on++ }
func (f *fakeIndicator) Off()   { f.off++ }
func (f *fakeIndicator) Blink() { f.blink++ }

func newTestLearner(t *testing.T, attempts ...attempt) (*irlearner, *fakeCapturer, *bytes.Buffer) {
	rx := &fakeCapturer{attempts: attempts}
	out := &bytes.Buffer{}
	l := newLearner(rx, store.New(), out)
	l.codesPath = filepath.Join(t.TempDir(), "learned_ir_codes.json")
	l.pause = 0
	return l, rx, out
}

// necPulses is a full NEC frame for value, MSB first.
func necPulses(value uint32) protocol.Pulses {
	p := protocol.Pulses{9000, 4500}
	for i := 31; i >= 0; i-- {
		if value&(1<<uint(i)) != 0 {
			p = append(p, 562, 1687)
		} else {
			p = append(p, 562, 562)
		}
	}
	return append(p, 562)
}

func TestLearnQuorum(t *testing.T) {
	var tests = []struct {
		name     string
		attempts []attempt
		stored   bool
	}{
		{"first two", []attempt{captured(powerOn), captured(powerOn), timedOut}, true},
		{"all three", []attempt{captured(powerOn), captured(powerOn), captured(powerOn)}, true},
		{"last two", []attempt{timedOut, captured(powerOn), captured(powerOn)}, true},
		{"first and last", []attempt{captured(powerOn), tooShort, captured(powerOn)}, true},
		{"first only", []attempt{captured(powerOn), timedOut, timedOut}, false},
		{"last only", []attempt{tooShort, timedOut, captured(powerOn)}, false},
		{"none", []attempt{timedOut, tooShort, timedOut}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, rx, _ := newTestLearner(t, tt.attempts...)

			_, err := l.Learn(context.Background(), "power_on")
			_, found := l.codes.Get("power_on")
			assert.Equal(t, tt.stored, found)
			if tt.stored {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrQuorum))
			}
			// every attempt runs regardless of outcome
			assert.Equal(t, 3, rx.Calls())
		})
	}
}

func TestLearnPowerOn(t *testing.T) {
	l, _, out := newTestLearner(t, captured(powerOn), captured(protocol.Pulses{9100, 4400, 570, 550, 570, 1700, 550, 570, 560, 1680, 560}), timedOut)

	cmd, err := l.Learn(context.Background(), "power_on")
	require.NoError(t, err)
	assert.Equal(t, protocol.NEC, cmd.Protocol)
	assert.Equal(t, powerOn, cmd.Pulses)

	// available straight away, no save or load needed
	got, found := l.codes.Get("power_on")
	require.True(t, found)
	assert.Equal(t, "power_on", got.Name)
	assert.Equal(t, powerOn, got.Pulses)
	assert.Equal(t, protocol.NEC, got.Protocol)
	// too short for a payload
	assert.Empty(t, got.Code)
	assert.Contains(t, out.String(), "Successfully learned command: power_on")
}

func TestLearnStoresFirstSuccess(t *testing.T) {
	sony := protocol.Pulses{2400, 600, 1200, 600, 600, 600, 1200, 600, 600, 600, 1200, 600}
	l, _, _ := newTestLearner(t, timedOut, captured(sony), captured(powerOn))

	cmd, err := l.Learn(context.Background(), "volume_up")
	require.NoError(t, err)
	assert.Equal(t, sony, cmd.Pulses)
	assert.Equal(t, protocol.Sony, cmd.Protocol)
}

func TestLearnDecodesNEC(t *testing.T) {
	frame := necPulses(0x20DF10EF)
	l, _, _ := newTestLearner(t, captured(frame), captured(frame), captured(frame))

	cmd, err := l.Learn(context.Background(), "power")
	require.NoError(t, err)
	assert.Equal(t, "20DF10EF", cmd.Code)
}

func TestLearnEmptyName(t *testing.T) {
	l, rx, _ := newTestLearner(t, captured(powerOn), captured(powerOn), captured(powerOn))

	for _, name := range []string{"", "   "} {
		_, err := l.Learn(context.Background(), name)
		assert.Equal(t, ErrEmptyName, err)
	}
	assert.Equal(t, 0, rx.Calls())
	assert.Equal(t, 0, l.codes.Len())
}

func TestLearnOverwrites(t *testing.T) {
	sony := protocol.Pulses{2400, 600, 1200, 600, 600, 600, 1200, 600, 600, 600, 1200, 600}
	l, _, _ := newTestLearner(t, captured(powerOn), captured(powerOn), captured(powerOn), captured(sony), captured(sony), timedOut)

	_, err := l.Learn(context.Background(), "power")
	require.NoError(t, err)
	_, err = l.Learn(context.Background(), "power")
	require.NoError(t, err)

	got, _ := l.codes.Get("power")
	assert.Equal(t, sony, got.Pulses)
	assert.Equal(t, protocol.Sony, got.Protocol)
	assert.Equal(t, 1, l.codes.Len())
}

func TestLearnFailureKeepsPrevious(t *testing.T) {
	l, _, _ := newTestLearner(t, captured(powerOn), captured(powerOn), captured(powerOn), timedOut, timedOut, timedOut)

	_, err := l.Learn(context.Background(), "power")
	require.NoError(t, err)
	_, err = l.Learn(context.Background(), "power")
	require.True(t, errors.Is(err, ErrQuorum))

	got, found := l.codes.Get("power")
	require.True(t, found)
	assert.Equal(t, powerOn, got.Pulses)
}

func TestLearnCancelled(t *testing.T) {
	l, rx, _ := newTestLearner(t, captured(powerOn), captured(powerOn), captured(powerOn))
	ctx, cancel := context.WithCancel(context.Background())
	rx.onCapture = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	_, err := l.Learn(ctx, "power")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrQuorum))
	assert.Equal(t, 2, rx.Calls())
	assert.Equal(t, 0, l.codes.Len())
}

func TestLearnPausesBetweenAttempts(t *testing.T) {
	l, rx, _ := newTestLearner(t, captured(powerOn), captured(powerOn), captured(powerOn))
	clock := clockwork.NewFakeClock()
	l.clock = clock
	l.pause = 2 * time.Second
	start := clock.Now()

	done := make(chan error, 1)
	go func() {
		_, err := l.Learn(context.Background(), "power")
		done <- err
	}()

	for i := 1; i < 3; i++ {
		clock.BlockUntil(1)
		assert.Equal(t, i, rx.Calls())
		clock.Advance(2 * time.Second)
	}
	require.NoError(t, <-done)
	assert.Equal(t, 3, rx.Calls())

	// two pauses, none after the last attempt
	got, _ := l.codes.Get("power")
	assert.Equal(t, start.Add(4*time.Second), got.LearnedAt)
}

func TestLearnCancelledDuringPause(t *testing.T) {
	l, rx, _ := newTestLearner(t, captured(powerOn), captured(powerOn), captured(powerOn))
	clock := clockwork.NewFakeClock()
	l.clock = clock
	l.pause = time.Hour
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := l.Learn(ctx, "power")
		done <- err
	}()

	clock.BlockUntil(1)
	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
	assert.Equal(t, 1, rx.Calls())
}

func TestLearnPublishes(t *testing.T) {
	l, _, _ := newTestLearner(t, captured(powerOn), captured(powerOn), captured(powerOn), captured(powerOn), captured(powerOn), captured(powerOn))
	pub := &fakePublisher{}
	l.pub = pub

	_, err := l.Learn(context.Background(), "power")
	require.NoError(t, err)
	require.Len(t, pub.got, 1)
	assert.Equal(t, "power", pub.got[0].Name)

	// a broken sink does not fail the learn
	pub.err = errors.New("broker down")
	_, err = l.Learn(context.Background(), "mute")
	require.NoError(t, err)
	_, found := l.codes.Get("mute")
	assert.True(t, found)
}

func TestLearnNoPublishOnQuorumFailure(t *testing.T) {
	l, _, _ := newTestLearner(t, captured(powerOn))
	pub := &fakePublisher{}
	l.pub = pub

	_, err := l.Learn(context.Background(), "power")
	require.Error(t, err)
	assert.Empty(t, pub.got)
}

func TestLearnDrivesLED(t *testing.T) {
	l, _, _ := newTestLearner(t, captured(powerOn), timedOut, captured(powerOn))
	ind := &fakeIndicator{}
	l.led = ind

	_, err := l.Learn(context.Background(), "power")
	require.NoError(t, err)
	assert.Equal(t, 3, ind.on)
	assert.Equal(t, 3, ind.off)
	assert.Equal(t, 2, ind.blink)
}

func TestLearnMetrics(t *testing.T) {
	learned := testutil.ToFloat64(Prom_learns.WithLabelValues("ok"))
	quorum := testutil.ToFloat64(Prom_learns.WithLabelValues("quorum"))
	timeouts := testutil.ToFloat64(Prom_captures.WithLabelValues("timeout"))

	l, _, _ := newTestLearner(t, captured(powerOn), captured(powerOn), timedOut, timedOut, timedOut, timedOut)
	_, _ = l.Learn(context.Background(), "power")
	_, _ = l.Learn(context.Background(), "mute")

	assert.Equal(t, learned+1, testutil.ToFloat64(Prom_learns.WithLabelValues("ok")))
	assert.Equal(t, quorum+1, testutil.ToFloat64(Prom_learns.WithLabelValues("quorum")))
	assert.Equal(t, timeouts+4, testutil.ToFloat64(Prom_captures.WithLabelValues("timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(Prom_learnedCommands))
}

func TestSave(t *testing.T) {
	l, _, _ := newTestLearner(t, captured(powerOn), captured(powerOn))
	_, err := l.Learn(context.Background(), "power_on")
	require.NoError(t, err)
	require.NoError(t, l.Save())

	loaded, err := store.Load(l.codesPath)
	require.NoError(t, err)
	got, found := loaded.Get("power_on")
	require.True(t, found)
	assert.Equal(t, powerOn, got.Pulses)
	assert.Equal(t, protocol.NEC, got.Protocol)

	// unwritable path, store still intact
	l.codesPath = filepath.Join(t.TempDir(), "missing", "codes.json")
	assert.Error(t, l.Save())
	assert.Equal(t, 1, l.codes.Len())
}

type fakeSender struct {
	sent     []protocol.Pulses
	patterns int
	err      error
}

func (f *fakeSender) Send(_ context.Context, p protocol.Pulses) error {
	f.sent = append(f.sent, p)
	return f.err
}

func (f *fakeSender) SendTestPattern(_ context.Context) error {
	f.patterns++
	return f.err
}

func TestSend(t *testing.T) {
	l, _, _ := newTestLearner(t)
	assert.Error(t, l.Send(context.Background(), "power"))

	tx := &fakeSender{}
	l.tx = tx
	err := l.Send(context.Background(), "power")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no learned command")

	l.codes.Put(store.LearnedCommand{Name: "power", Pulses: powerOn, Protocol: protocol.NEC})
	require.NoError(t, l.Send(context.Background(), "power"))
	require.Len(t, tx.sent, 1)
	assert.Equal(t, powerOn, tx.sent[0])
}
