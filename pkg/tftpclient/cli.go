package tftpclient

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Cli runs an interactive connect/get/put REPL over stdin/stdout.
type Cli struct {
	log       *zap.SugaredLogger
	connector Connector
}

// NewCli builds a Cli driving connector.
func NewCli(log *zap.SugaredLogger, connector Connector) *Cli {
	return &Cli{log: log, connector: connector}
}

// Read runs the REPL until stdin closes, "quit" is entered, or ctx is
// cancelled. ctx is checked after each input line is read, so a
// cancellation while waiting for input takes effect once the next line
// arrives or stdin closes.
func (c *Cli) Read(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	evaluator := newEvaluator(c.log, c.connector)

	fmt.Print("tftp> ")

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		done, err := evaluator.evaluate(ctx, scanner.Text())
		if err != nil {
			fmt.Printf("%s\n", err.Error())
		}

		if done {
			break
		}

		fmt.Print("tftp> ")
	}

	if err := scanner.Err(); err != nil {
		c.log.Errorf("reading stdin: %s", err.Error())
	}
}
