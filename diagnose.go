package main

import (
	"context"
	"fmt"

	"github.com/gr-butler/irlearner/buffer"
	"github.com/gr-butler/irlearner/protocol"
	logger "github.com/sirupsen/logrus"
)

type stats struct {
	Average buffer.Average
	Minimum buffer.Minimum
	Maximum buffer.Maximum
}

type diagReport struct {
	Captured  int
	Failed    int
	Protocols []protocol.Tag
	Headers   []float64
	Header    stats
	Pulses    stats
}

// Diagnose takes a run of captures from the same button and reports how
// stable the receiver is: the spread of header durations and pulse counts
// and how each capture classified. Nothing is stored.
func (l *irlearner) Diagnose(ctx context.Context, samples int) (diagReport, error) {
	report := diagReport{}
	headers := buffer.NewBuffer(samples)
	counts := buffer.NewBuffer(samples)

	fmt.Fprintf(l.out, "\nReceiver diagnostics: press the same button %d times\n", samples)
	for i := 1; i <= samples; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		fmt.Fprintf(l.out, "Capture %d/%d...\n", i, samples)
		p, err := l.capture(ctx)
		Prom_captures.WithLabelValues(captureResult(err)).Inc()
		if err != nil {
			if isCancelled(err) {
				return report, err
			}
			report.Failed++
			fmt.Fprintf(l.out, "  failed: %v\n", err)
		} else {
			report.Captured++
			tag := protocol.Classify(p)
			report.Protocols = append(report.Protocols, tag)
			headers.AddItem(float64(p.Header()))
			counts.AddItem(float64(len(p)))
			fmt.Fprintf(l.out, "  %s, header %dus, %d pulses\n", tag, p.Header(), len(p))
		}

		if i < samples {
			if err := l.wait(ctx); err != nil {
				return report, err
			}
		}
	}

	report.Headers = headers.GetRawData()
	a, mn, mx, _ := headers.GetAverageMinMaxSum()
	report.Header = stats{a, mn, mx}
	a, mn, mx, _ = counts.GetAverageMinMaxSum()
	report.Pulses = stats{a, mn, mx}

	logger.Infof("Diagnostics [%v] captured [%v] failed, header avg [%.0f] min [%.0f] max [%.0f]",
		report.Captured, report.Failed, report.Header.Average, report.Header.Minimum, report.Header.Maximum)
	fmt.Fprintf(l.out, "Captured %d of %d\n", report.Captured, samples)
	if headers.Len() > 0 {
		fmt.Fprintf(l.out, "Header us: avg %.0f, min %.0f, max %.0f, samples %v\n",
			report.Header.Average, report.Header.Minimum, report.Header.Maximum, report.Headers)
		fmt.Fprintf(l.out, "Pulses:    avg %.1f, min %.0f, max %.0f\n",
			report.Pulses.Average, report.Pulses.Minimum, report.Pulses.Maximum)
	}
	return report, nil
}
