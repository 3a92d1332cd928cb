// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/alecthomas/units"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/grafana/heaparray/pkg/alloc"
	"github.com/grafana/heaparray/pkg/heaparray"
	"github.com/grafana/heaparray/pkg/memblock"
)

type smokeLabel struct {
	seed uint64
}

// SmokeCommand allocates a block through the configured allocator, checks its
// content and destructs it.
type SmokeCommand struct {
	fs        afero.Fs
	getLogger func() log.Logger
	printer   Printer

	configFile string
	length     int
	maxSize    units.Base2Bytes
	seed       uint64
}

// Register is used to register the command to a parent command.
func (c *SmokeCommand) Register(app *kingpin.Application, fs afero.Fs, getLogger func() log.Logger, printer Printer) {
	c.fs = fs
	c.getLogger = getLogger
	c.printer = printer

	cmd := app.Command("smoke", "Allocate, check and destruct a block of uint64 values.").Action(c.run)
	cmd.Flag("config.file", "YAML file with the allocator configuration. Defaults to the heap allocator.").StringVar(&c.configFile)
	cmd.Flag("length", "Number of elements of the block.").Default("1024").IntVar(&c.length)
	cmd.Flag("max-size", "Refuse to allocate blocks larger than this.").Default("64MiB").BytesVar(&c.maxSize)
	cmd.Flag("seed", "Value the elements are derived from.").Default("1").Uint64Var(&c.seed)
}

func (c *SmokeCommand) run(_ *kingpin.ParseContext) (returnErr error) {
	logger := c.getLogger()

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	l, err := memblock.ComputeRawLayout(8, 8, 8, 8, c.length)
	if err != nil {
		return err
	}
	if int64(l.Size) > int64(c.maxSize) {
		return fmt.Errorf("block of %d elements takes %s, more than the maximum of %s", c.length, humanize.IBytes(uint64(l.Size)), c.maxSize)
	}

	reg := prometheus.NewRegistry()
	a, closer, err := cfg.Build(logger, reg)
	if err != nil {
		return err
	}
	defer func() {
		returnErr = multierr.Append(returnErr, errors.Wrap(closer.Close(), "closing allocator"))
	}()
	if err := memblock.SetAllocator(a); err != nil {
		return err
	}

	if err := smoke(smokeLabel{seed: c.seed}, c.length, func() { logRSS(logger) }); err != nil {
		return err
	}

	if i, ok := a.(*alloc.Instrumented); ok {
		level.Info(logger).Log("msg", "allocator stats", "allocations", i.Allocations(), "deallocations", i.Deallocations(), "live_blocks", i.LiveBlocks(), "live_bytes", i.LiveBytes())
	}

	c.printer.PrintLine(fmt.Sprintf("Allocated, checked and destructed a block of %d elements (%s) with the %s allocator.", c.length, humanize.IBytes(uint64(l.Size)), cfg.Backend))
	return nil
}

func (c *SmokeCommand) loadConfig() (alloc.Config, error) {
	var buf []byte
	if c.configFile != "" {
		var err error
		buf, err = afero.ReadFile(c.fs, c.configFile)
		if err != nil {
			return alloc.Config{}, errors.Wrap(err, "reading allocator config")
		}
	}
	return alloc.ParseConfig(buf)
}

// logRSS logs the resident set size of the process while the block is live.
func logRSS(logger log.Logger) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		level.Debug(logger).Log("msg", "failed to get process; will not report memory usage", "err", err)
		return
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		level.Debug(logger).Log("msg", "failed to get process memory usage", "err", err)
		return
	}
	level.Info(logger).Log("msg", "process memory with the block allocated", "rss", humanize.IBytes(mem.RSS))
}

func smokeValue(seed uint64, i int) uint64 {
	return seed*0x9e3779b97f4a7c15 + uint64(i)
}

// smoke fills a block with values derived from the label, reads them back
// and destructs the block. live is called once the block has been checked.
func smoke(label smokeLabel, length int, live func()) error {
	a := heaparray.NewFat(label, length, func(l *smokeLabel, i int) uint64 {
		return smokeValue(l.seed, i)
	})
	defer a.Free()

	if a.Len() != length {
		return fmt.Errorf("block has %d elements, expected %d", a.Len(), length)
	}
	for i, v := range a.Slice() {
		if expected := smokeValue(a.Label().seed, i); v != expected {
			return fmt.Errorf("element %d is %d, expected %d", i, v, expected)
		}
	}
	live()
	return nil
}
