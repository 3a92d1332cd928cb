// SPDX-License-Identifier: AGPL-3.0-only

package alloc

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/grafana/heaparray/pkg/memblock"
)

const (
	BackendHeap   = "heap"
	BackendMmap   = "mmap"
	BackendMalloc = "malloc"
)

var backends = []string{BackendHeap, BackendMmap, BackendMalloc}

// Config selects the allocator blocks are placed in.
type Config struct {
	Backend    string     `yaml:"backend"`
	Instrument bool       `yaml:"instrument"`
	Mmap       MmapConfig `yaml:"mmap"`
}

type MmapConfig struct {
	QuarantineFreed bool `yaml:"quarantine_freed"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.RegisterFlagsWithPrefix("allocator.", f)
}

func (c *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Backend, prefix+"backend", BackendHeap, fmt.Sprintf("Where blocks are allocated. Supported values are: %s.", strings.Join(backends, ", ")))
	f.BoolVar(&c.Instrument, prefix+"instrument", false, "Count allocated blocks and bytes and export them as metrics.")
	c.Mmap.RegisterFlagsWithPrefix(prefix+"mmap.", f)
}

func (c *MmapConfig) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.BoolVar(&c.QuarantineFreed, prefix+"quarantine-freed", false, "Keep the memory of destructed blocks mapped without any access permission until the allocator is closed, so that any access after destruction faults instead of reading reused memory.")
}

func (c Config) Validate() error {
	if !slices.Contains(backends, c.Backend) {
		return fmt.Errorf("unsupported allocator backend %q, supported values are: %s", c.Backend, strings.Join(backends, ", "))
	}
	if c.Mmap.QuarantineFreed && c.Backend != BackendMmap {
		return fmt.Errorf("quarantining freed blocks is only supported by the %s backend", BackendMmap)
	}
	return nil
}

// ParseConfig reads a YAML allocator configuration. Fields that are not set
// keep their flag default, and unknown fields are rejected.
func ParseConfig(buf []byte) (Config, error) {
	var cfg Config
	flagext.DefaultValues(&cfg)

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "parsing allocator config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid allocator config")
	}
	return cfg, nil
}

// Build creates the configured allocator. The returned closer releases the
// memory held by the allocator and must only be called once every block
// allocated with it has been destructed.
func (c Config) Build(logger log.Logger, reg prometheus.Registerer) (memblock.Allocator, io.Closer, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		a      memblock.Allocator
		closer io.Closer = closerFunc(func() error { return nil })
	)
	switch c.Backend {
	case BackendHeap:
		a = memblock.HeapAllocator()
	case BackendMmap:
		m := NewMmap(c.Mmap, logger)
		a, closer = m, m
	case BackendMalloc:
		m := NewMalloc(logger)
		a, closer = m, m
	}

	if c.Instrument {
		a = NewInstrumented(a, reg)
	}
	return a, closer, nil
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
