package tftpclient

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var (
	getRegex     = regexp.MustCompile(`^get\s+(\S+)$`)
	putRegex     = regexp.MustCompile(`^put\s+(\S+)$`)
	timeoutRegex = regexp.MustCompile(`^timeout\s+(\d+)$`)
	blksizeRegex = regexp.MustCompile(`^blksize\s+(\d+)$`)
	connectRegex = regexp.MustCompile(`^connect\s+(\S+)\s+(\d+)$`)
	traceRegex   = regexp.MustCompile(`^trace$`)
	quitRegex    = regexp.MustCompile(`^quit$`)
	helpRegex    = regexp.MustCompile(`^help$`)
)

const helpText = `Commands:
	connect <host> <port>
	get <file>
	put <file>
	blksize <bytes>
	timeout <seconds>
	trace
	quit`

// evaluator parses one REPL line at a time and drives a Connector.
type evaluator struct {
	log    *zap.SugaredLogger
	client Connector
	trace  bool
}

func newEvaluator(log *zap.SugaredLogger, client Connector) *evaluator {
	return &evaluator{log: log, client: client}
}

func (e *evaluator) evaluate(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)

	switch {
	case quitRegex.MatchString(line):
		return true, nil

	case helpRegex.MatchString(line):
		fmt.Println(helpText)

		return false, nil

	case traceRegex.MatchString(line):
		e.trace = !e.trace
		e.client.SetTrace(e.trace)
		fmt.Printf("trace %s\n", onOff(e.trace))

		return false, nil

	default:
		if m := connectRegex.FindStringSubmatch(line); m != nil {
			return false, e.client.Connect(fmt.Sprintf("%s:%s", m[1], m[2]))
		}

		if m := getRegex.FindStringSubmatch(line); m != nil {
			return false, e.client.Get(ctx, m[1])
		}

		if m := putRegex.FindStringSubmatch(line); m != nil {
			return false, e.client.Put(ctx, m[1])
		}

		if m := timeoutRegex.FindStringSubmatch(line); m != nil {
			n, err := strconv.ParseUint(m[1], 10, 32)
			if err != nil {
				return false, fmt.Errorf("timeout value can not be parsed: %w", err)
			}

			e.client.SetTimeout(uint(n))

			return false, nil
		}

		if m := blksizeRegex.FindStringSubmatch(line); m != nil {
			n, err := strconv.ParseUint(m[1], 10, 16)
			if err != nil {
				return false, fmt.Errorf("blksize value can not be parsed: %w", err)
			}

			e.client.SetBlksize(uint16(n))

			return false, nil
		}

		return false, fmt.Errorf("unknown command or arguments: %s", line)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}

	return "off"
}
