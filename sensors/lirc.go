package sensors

import (
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/devices/v3/lirc"
)

// NewKeyReceiver connects to a running lircd, which decodes remotes it
// already knows into key names. It complements raw capture for remotes
// that lircd has a config for.
func NewKeyReceiver() (*lirc.Conn, error) {
	logger.Info("Connecting to lircd")
	c, err := lirc.New()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to lircd")
	}
	logger.Infof("Connected to [%v]", c)
	return c, nil
}
