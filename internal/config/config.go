// Package config implements the command's external interface: the parsed
// configuration, its validation, and the startup summary log line. The
// flag set itself is parsed in cmd/tieredmem.
package config

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tieredmem/tieredmem/internal/memtier"
	"github.com/tieredmem/tieredmem/internal/pagetable"
	"github.com/tieredmem/tieredmem/internal/policy"
	"github.com/tieredmem/tieredmem/internal/workload"
)

// ClientSpec is one parsed `--client-tier-sizes` tuple paired with the
// pattern `--patterns` assigns to that client position.
type ClientSpec struct {
	Pattern string // uniform | hot | zipfian
	Local   int
	Remote  int
	Pmem    int
}

// Config holds every command-line flag, already parsed into native types.
type Config struct {
	BufferSize int
	NumTiers   int
	MemSizes   [3]int // LOCAL, REMOTE, PMEM page counts; REMOTE unused when NumTiers==2

	Clients []ClientSpec

	ZipfS       float64
	RunningTime time.Duration
	Ratio       float64
	SampleRate  time.Duration

	PolicyType      string // lru | frequency | hybrid
	HotThresholdMs  int64
	ColdThresholdMs int64
	HotCount        uint64
	ColdCount       uint64
	RecencyWeight   float64
	FrequencyWeight float64

	ScanInterval time.Duration
	CacheRing    bool

	Output         string
	PeriodicOutput string
}

// Validate checks every cross-field constraint on the parsed flags and
// returns a *memtier.ConfigError describing the first one found. It does
// not allocate anything, so a rejected config leaves no tier memory
// reserved.
func (c *Config) Validate() error {
	if c.NumTiers != 2 && c.NumTiers != 3 {
		return memtier.NewConfigError("num-tiers must be 2 or 3, got %d", c.NumTiers)
	}
	if c.BufferSize <= 0 {
		return memtier.NewConfigError("buffer-size must be positive, got %d", c.BufferSize)
	}
	if c.Ratio < 0 || c.Ratio > 1 {
		return memtier.NewConfigError("ratio must be in [0,1], got %v", c.Ratio)
	}
	switch c.PolicyType {
	case "lru", "frequency", "hybrid":
	default:
		return memtier.NewConfigError("unknown policy-type %q", c.PolicyType)
	}

	needsZipfS := false
	for i, cl := range c.Clients {
		switch cl.Pattern {
		case "uniform", "hot":
		case "zipfian":
			needsZipfS = true
		default:
			return memtier.NewConfigError("client %d: unknown pattern %q", i, cl.Pattern)
		}
		if c.NumTiers == 2 && cl.Remote != 0 {
			return memtier.NewConfigError("client %d requests REMOTE pages in a two-tier topology", i)
		}
	}
	if needsZipfS && !workload.ZipfSkewValid(c.ZipfS) {
		return memtier.NewConfigError("zipf-skew must be > 1, got %v", c.ZipfS)
	}

	var totals [3]int
	for _, cl := range c.Clients {
		totals[memtier.Local] += cl.Local
		totals[memtier.Remote] += cl.Remote
		totals[memtier.Pmem] += cl.Pmem
	}
	for t := 0; t < len(totals); t++ {
		if totals[t] > c.MemSizes[t] {
			return memtier.NewConfigError("memory allocation exceeds %s limit: %d requested, %d available",
				memtier.TierName(memtier.Tier(t), c.NumTiers), totals[t], c.MemSizes[t])
		}
	}
	return nil
}

// ClientShapes converts the parsed client specs into pagetable.ClientShape
// values for Table.Init.
func (c *Config) ClientShapes() []pagetable.ClientShape {
	shapes := make([]pagetable.ClientShape, len(c.Clients))
	for i, cl := range c.Clients {
		shapes[i] = pagetable.ClientShape{Local: cl.Local, Remote: cl.Remote, Pmem: cl.Pmem}
	}
	return shapes
}

// Strategy builds the policy.Strategy named by PolicyType with this
// Config's threshold parameters.
func (c *Config) Strategy() (policy.Strategy, error) {
	switch c.PolicyType {
	case "lru":
		return policy.LRU{HotMs: c.HotThresholdMs, ColdMs: c.ColdThresholdMs}, nil
	case "frequency":
		return policy.Frequency{HotCount: c.HotCount, ColdCount: c.ColdCount}, nil
	case "hybrid":
		return policy.Hybrid{
			HotMs: c.HotThresholdMs, ColdMs: c.ColdThresholdMs,
			HotCount: c.HotCount, ColdCount: c.ColdCount,
			RecencyWeight: c.RecencyWeight, FrequencyWeight: c.FrequencyWeight,
		}, nil
	default:
		return nil, memtier.NewConfigError("unknown policy-type %q", c.PolicyType)
	}
}

// LogSummary emits the single startup summary line the original
// ConfigParser printed on successful validation.
func (c *Config) LogSummary(log zerolog.Logger) {
	log.Info().
		Int("num_tiers", c.NumTiers).
		Ints("mem_sizes", c.MemSizes[:c.NumTiers]).
		Int("clients", len(c.Clients)).
		Str("policy", c.PolicyType).
		Dur("scan_interval", c.ScanInterval).
		Dur("sample_rate", c.SampleRate).
		Bool("cache_ring", c.CacheRing).
		Msg("configuration validated")
}
