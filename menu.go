package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

const menuText = `
=== IR Learning Menu ===
1. Learn new command
2. List learned commands
3. Save codes to file
4. Send learned command
5. Send test pattern
6. Receiver diagnostics
7. Exit`

// readLines feeds stdin to the menu one trimmed line at a time. The channel
// closes at EOF. The goroutine is left blocked in Scan at exit, there is no
// way to interrupt a read from stdin.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			logger.Errorf("Failed reading input [%v]", err)
		}
	}()
	return lines
}

func (l *irlearner) prompt(ctx context.Context, lines <-chan string, text string) (string, error) {
	fmt.Fprint(l.out, text)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

// Menu runs the operator loop until exit is chosen, input ends, or ctx is
// cancelled. Only cancellation is returned as an error; every other failure
// is reported and the menu carries on.
func (l *irlearner) Menu(ctx context.Context, lines <-chan string) error {
	for {
		fmt.Fprintln(l.out, menuText)
		choice, err := l.prompt(ctx, lines, "Enter choice (1-7): ")
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			name, err := l.prompt(ctx, lines, "Enter command name: ")
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if name == "" {
				fmt.Fprintln(l.out, "Invalid command name")
				continue
			}
			if _, err := l.Learn(ctx, name); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warnf("Learn [%v] failed [%v]", name, err)
			}

		case "2":
			l.List()

		case "3":
			if err := l.Save(); err != nil {
				logger.Errorf("Failed to save codes [%v]", err)
				fmt.Fprintf(l.out, "Error saving codes: %v\n", err)
			} else {
				fmt.Fprintf(l.out, "Saved learned codes to %s\n", l.codesPath)
			}

		case "4":
			name, err := l.prompt(ctx, lines, "Enter command name: ")
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := l.Send(ctx, name); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(l.out, "Send failed: %v\n", err)
			}

		case "5":
			if l.tx == nil {
				fmt.Fprintln(l.out, "No IR transmitter configured")
				continue
			}
			if err := l.tx.SendTestPattern(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(l.out, "Send failed: %v\n", err)
			}

		case "6":
			if _, err := l.Diagnose(ctx, l.diagSamples); err != nil {
				return err
			}

		case "7":
			return nil

		default:
			fmt.Fprintln(l.out, "Invalid choice")
		}
	}
}

// List prints every learned command sorted by name.
func (l *irlearner) List() {
	all := l.codes.All()
	if len(all) == 0 {
		fmt.Fprintln(l.out, "No commands learned yet")
		return
	}
	fmt.Fprintln(l.out, "\nLearned commands:")
	for _, c := range all {
		line := fmt.Sprintf("  %s: %s protocol, %d pulses, learned: %s",
			c.Name, c.Protocol, len(c.Pulses), c.LearnedAt.Format(time.RFC3339))
		if c.Code != "" {
			line += ", code: " + c.Code
		}
		fmt.Fprintln(l.out, line)
	}
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
