package publish

import (
	"context"

	"github.com/gr-butler/irlearner/store"
	logger "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/ir"
)

/*
 * Publishing tells the outside world about newly learned commands. It is
 * strictly a side channel: the code store is updated before any sink is
 * called and a failing sink never undoes that.
 */

// Sink receives every learned command.
type Sink interface {
	Publish(ctx context.Context, cmd store.LearnedCommand) error
	Close() error
	String() string
}

// KeySink is implemented by sinks that also forward lircd decoded keys.
type KeySink interface {
	PublishKey(ctx context.Context, msg ir.Message) error
}

type Publisher struct {
	sinks []Sink
}

func New(sinks ...Sink) *Publisher {
	p := &Publisher{}
	for _, s := range sinks {
		if s != nil {
			logger.Infof("Publishing to [%v]", s)
			p.sinks = append(p.sinks, s)
		}
	}
	return p
}

func (p *Publisher) Len() int {
	if p == nil {
		return 0
	}
	return len(p.sinks)
}

// Publish sends cmd to every sink. Each failure is logged; the combined
// error is returned for callers that want to count them.
func (p *Publisher) Publish(ctx context.Context, cmd store.LearnedCommand) error {
	if p == nil {
		return nil
	}
	var errs error
	for _, s := range p.sinks {
		if err := s.Publish(ctx, cmd); err != nil {
			logger.Errorf("Failed to publish [%v] to [%v] [%v]", cmd.Name, s, err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (p *Publisher) PublishKey(ctx context.Context, msg ir.Message) error {
	if p == nil {
		return nil
	}
	var errs error
	for _, s := range p.sinks {
		ks, ok := s.(KeySink)
		if !ok {
			continue
		}
		if err := ks.PublishKey(ctx, msg); err != nil {
			logger.Errorf("Failed to publish key [%v] to [%v] [%v]", msg.Key, s, err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	var errs error
	for _, s := range p.sinks {
		errs = multierr.Append(errs, s.Close())
	}
	return errs
}
