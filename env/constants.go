package env

import "time"

const (
	GPIO04 = "GPIO04"
	GPIO17 = "GPIO17" // IR LED (transmitter)
	GPIO18 = "GPIO18" // IR receiver out
	GPIO20 = "GPIO20" // status LED
	GPIO27 = "GPIO27"

	ReceiverIn     = GPIO18
	TransmitterOut = GPIO17
	StatusLed      = GPIO20

	CodesFile = "learned_ir_codes.json"

	// operator has this long to press the remote button
	CaptureTimeout = time.Second * 10
	// gap between learn attempts so the operator can re-press
	AttemptPause  = time.Second * 2
	LearnAttempts = 3
	LearnQuorum   = 2

	// a capture must have more than MinPulses durations to be a real code
	MinPulses = 10
	// once more than SettlePulses durations are recorded, stop at the next idle level
	SettlePulses = 50
	// hard cap so a stuck or noisy line can't grow the capture forever
	MaxPulses = 1024

	// https://www.sbprojects.net/knowledge/ir/nec.php
	// most consumer remotes modulate at 38kHz
	CarrierHz = 38000

	DiagnosticSamples = 5

	LEDFlashDuration = time.Millisecond * 100

	MetricsAddr = ":2112"
	MQTTTopic   = "irlearner"
	MQTTTimeout = time.Second * 5
	HTTPTimeout = time.Second * 30
)
