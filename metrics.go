package main

import (
	"time"

	"github.com/gr-butler/irlearner/sensors"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	logger "github.com/sirupsen/logrus"
)

var Prom_captures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "irlearner_capture_total",
		Help: "Capture attempts by result",
	},
	[]string{"result"},
)

var Prom_learns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "irlearner_learn_total",
		Help: "Learn requests by result",
	},
	[]string{"result"},
)

var Prom_saves = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "irlearner_save_total",
		Help: "Code file writes by result",
	},
	[]string{"result"},
)

var Prom_learnedCommands = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "irlearner_learned_commands",
		Help: "Commands currently held in the code store",
	},
)

func init() {
	logger.Infof("%v: Initialize prometheus...", time.Now().Format(time.RFC822))
	prometheus.MustRegister(
		Prom_captures,
		Prom_learns,
		Prom_saves,
		Prom_learnedCommands)
}

// captureResult is the result label for a capture error.
func captureResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sensors.ErrCaptureTooShort):
		return "too_short"
	case errors.Is(err, sensors.ErrCaptureTimeout):
		return "timeout"
	case isCancelled(err):
		return "cancelled"
	}
	return "error"
}
