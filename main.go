package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gr-butler/irlearner/env"
	"github.com/gr-butler/irlearner/led"
	"github.com/gr-butler/irlearner/publish"
	"github.com/gr-butler/irlearner/sensors"
	"github.com/gr-butler/irlearner/store"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logger "github.com/sirupsen/logrus"
)

const version = "GRB-IRLearner-1.0.0"

type webdata struct {
	TimeNow  string        `json:"time"`
	Version  string        `json:"version"`
	Commands []commandInfo `json:"commands"`
}

type commandInfo struct {
	Name      string `json:"name"`
	Protocol  string `json:"protocol"`
	Code      string `json:"code,omitempty"`
	Pulses    int    `json:"pulses"`
	LearnedAt string `json:"learned_at"`
}

func main() {
	logger.Infof("Starting IR learner [%v]", version)

	args := env.Args{
		Test:     flag.Bool("test", false, "test mode, nothing is published"),
		Verbose:  flag.Bool("verbose", false, "debug logging"),
		Lirc:     flag.Bool("lirc", false, "also listen for keys decoded by lircd"),
		Codes:    flag.String("codes", env.CodesFile, "learned codes file"),
		RxPin:    flag.String("rx", env.ReceiverIn, "IR receiver pin"),
		TxPin:    flag.String("tx", env.TransmitterOut, "IR LED pin, empty to disable sending"),
		LedPin:   flag.String("led", env.StatusLed, "status LED pin, empty for none"),
		Metrics:  flag.String("metrics", env.MetricsAddr, "metrics listen address"),
		Captures: flag.Int("captures", env.DiagnosticSamples, "captures per diagnostics run"),
	}
	flag.Parse()

	if *args.Verbose {
		logger.SetLevel(logger.DebugLevel)
	}
	if *args.Test {
		logger.Info("TEST MODE")
	}

	if err := sensors.InitHost(); err != nil {
		logger.Errorf("Failed to initialise host!! [%v]", err)
		logger.Exit(1)
	}
	rx, err := sensors.NewReceiver(*args.RxPin)
	if err != nil {
		logger.Errorf("Failed to initialise receiver!! [%v]", err)
		logger.Exit(1)
	}

	codes, err := store.Load(*args.Codes)
	if err != nil {
		logger.Warnf("Starting with no learned codes [%v]", err)
		if errors.Is(err, store.ErrCorrupt) {
			if _, err := store.SetAside(*args.Codes); err != nil {
				logger.Errorf("Codes file will be overwritten on save [%v]", err)
			}
		}
	}
	Prom_learnedCommands.Set(float64(codes.Len()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := newLearner(rx, codes, os.Stdout)
	l.codesPath = *args.Codes
	l.diagSamples = *args.Captures

	down := &shutdown{save: l.Save}
	down.onClose(rx.Halt)

	if *args.TxPin != "" {
		tx, err := sensors.NewTransmitter(*args.TxPin)
		if err != nil {
			logger.Warnf("Sending disabled [%v]", err)
		} else {
			l.tx = tx
			down.onClose(tx.Halt)
		}
	}
	if *args.LedPin != "" {
		status := led.NewLED("status", *args.LedPin)
		l.led = status
		down.onClose(status.Close)
	}

	var pub *publish.Publisher
	if !*args.Test {
		pub = newPublisher(ctx)
		if pub.Len() > 0 {
			l.pub = pub
			down.onClose(pub.Close)
		}
	}

	sendData, ok := os.LookupEnv("SENDPROMDATA")
	if ok && sendData == "true" && !*args.Test {
		srv := l.metricsServer(*args.Metrics)
		down.onClose(srv.Close)
		go func() {
			logger.Infof("Starting webservice on [%v]", *args.Metrics)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Webservice stopped [%v]", err)
			}
		}()
	}

	if *args.Lirc {
		conn, err := sensors.NewKeyReceiver()
		if err != nil {
			logger.Warnf("Key monitor disabled [%v]", err)
		} else {
			down.onClose(conn.Close)
			go l.MonitorKeys(ctx, conn.Channel(), pub)
		}
	}

	if err := l.Menu(ctx, readLines(os.Stdin)); err != nil && !isCancelled(err) {
		logger.Errorf("Menu stopped [%v]", err)
	}
	if ctx.Err() != nil {
		fmt.Println("\nExiting...")
	}
	if err := down.Run(); err != nil {
		logger.Errorf("Shutdown [%v]", err)
	}
	logger.Info("Exiting")
}

// newPublisher enables each sink whose environment variable is set. A sink
// that cannot start is logged and left out.
func newPublisher(ctx context.Context) *publish.Publisher {
	var sinks []publish.Sink

	if broker, ok := os.LookupEnv("IRLEARN_MQTT_BROKER"); ok {
		m, err := publish.NewMQTTSink(broker, os.Getenv("IRLEARN_MQTT_TOPIC"))
		if err != nil {
			logger.Errorf("MQTT disabled [%v]", err)
		} else {
			sinks = append(sinks, m)
		}
	}
	if hook, ok := os.LookupEnv("IRLEARN_WEBHOOK"); ok {
		sinks = append(sinks, publish.NewWebhookSink(hook))
	}
	if dsn, ok := os.LookupEnv("IRLEARN_DB_URL"); ok {
		dbCtx, cancel := context.WithTimeout(ctx, env.HTTPTimeout)
		a, err := publish.OpenArchive(dbCtx, dsn)
		cancel()
		if err != nil {
			logger.Errorf("Postgres archive disabled [%v]", err)
		} else {
			sinks = append(sinks, a)
		}
	}
	return publish.New(sinks...)
}

func (l *irlearner) metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handler)
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (l *irlearner) handler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	wd := webdata{
		TimeNow:  time.Now().Format(time.RFC822),
		Version:  version,
		Commands: []commandInfo{},
	}
	for _, c := range l.codes.All() {
		wd.Commands = append(wd.Commands, commandInfo{
			Name:      c.Name,
			Protocol:  c.Protocol.String(),
			Code:      c.Code,
			Pulses:    len(c.Pulses),
			LearnedAt: c.LearnedAt.Format(time.RFC3339),
		})
	}

	js, err := json.Marshal(wd)
	if err != nil {
		logger.Errorf("JSON error [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = rw.Write(js) // not much we can do if this fails
}
