package main

import (
	"context"
	"strings"

	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/ir"
)

type keyPublisher interface {
	PublishKey(ctx context.Context, msg ir.Message) error
}

// MonitorKeys logs keys decoded by lircd until ctx is done or the channel
// closes. A key whose name matches a learned command, ignoring case and
// the KEY_ prefix, is called out.
func (l *irlearner) MonitorKeys(ctx context.Context, keys <-chan ir.Message, pub keyPublisher) int {
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return seen
		case msg, ok := <-keys:
			if !ok {
				logger.Info("lircd key channel closed")
				return seen
			}
			seen++
			if name, ok := l.matchKey(msg.Key); ok {
				logger.Infof("Key [%v] from [%v] matches learned command [%v]", msg.Key, msg.RemoteType, name)
			} else {
				logger.Infof("Key [%v] from [%v] repeat [%v]", msg.Key, msg.RemoteType, msg.Repeat)
			}
			if pub != nil {
				// errors already logged per sink
				_ = pub.PublishKey(ctx, msg)
			}
		}
	}
}

func (l *irlearner) matchKey(key ir.Key) (string, bool) {
	want := strings.ToLower(strings.TrimPrefix(string(key), "KEY_"))
	for _, name := range l.codes.Names() {
		if strings.ToLower(name) == want {
			return name, true
		}
	}
	return "", false
}
