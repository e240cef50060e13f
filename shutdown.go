package main

import (
	"sync"

	logger "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// shutdown saves the code store and releases hardware exactly once, no
// matter how many exit paths reach it.
type shutdown struct {
	once    sync.Once
	save    func() error
	closers []func() error
	err     error
}

func (s *shutdown) onClose(f func() error) {
	s.closers = append(s.closers, f)
}

func (s *shutdown) Run() error {
	s.once.Do(func() {
		logger.Info("Shutting down")
		if s.save != nil {
			s.err = multierr.Append(s.err, s.save())
		}
		// release in reverse order of acquisition
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.err = multierr.Append(s.err, s.closers[i]())
		}
	})
	return s.err
}
