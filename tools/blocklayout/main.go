// SPDX-License-Identifier: AGPL-3.0-only

// blocklayout prints the layout of blocks holding a label and an array of
// elements, and allocates blocks through a configured allocator backend.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"
)

// Printer writes the output of commands.
type Printer interface {
	PrintLine(string)
}

type writerPrinter struct {
	w io.Writer
}

func (p writerPrinter) PrintLine(line string) {
	fmt.Fprintln(p.w, line)
}

var (
	layoutCommand LayoutCommand
	smokeCommand  SmokeCommand
)

func main() {
	app := kingpin.New("blocklayout", "Inspect and exercise the layout of labelled single-allocation arrays.")

	var logLevel string
	app.Flag("log.level", "Only log messages with the given severity or above.").Default("info").EnumVar(&logLevel, "debug", "info", "warn", "error")

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	getLogger := func() log.Logger {
		return level.NewFilter(logger, level.Allow(level.ParseDefault(logLevel, level.InfoValue())))
	}
	printer := writerPrinter{w: os.Stdout}

	layoutCommand.Register(app, printer)
	smokeCommand.Register(app, afero.NewOsFs(), getLogger, printer)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}
