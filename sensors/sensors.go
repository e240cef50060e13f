package sensors

import (
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

/*
 * Sensors owns the GPIO lines the IR learner uses: the demodulating
 * receiver input and the IR LED output. Pins are looked up by name once
 * and handed to the devices that use them, there is no global pin state.
 */

// InitHost loads the periph drivers. It must be called before any pin lookup.
func InitHost() error {
	state, err := host.Init()
	if err != nil {
		return errors.Wrap(err, "failed to init periph host")
	}
	for _, f := range state.Failed {
		logger.Warnf("Driver [%v] failed [%v]", f.D, f.Err)
	}
	logger.Infof("Loaded [%v] periph drivers", len(state.Loaded))
	return nil
}

func lookupPin(name string, what string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("failed to find %v - %v pin", name, what)
	}
	logger.Infof("%s: %s", p, p.Function())
	return p, nil
}
