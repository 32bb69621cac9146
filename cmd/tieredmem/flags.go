package main

import (
	"flag"
	"strconv"
	"strings"
	"time"

	"github.com/tieredmem/tieredmem/internal/config"
	"github.com/tieredmem/tieredmem/internal/memtier"
)

// rawFlags holds every flag in its as-parsed string/primitive form, before
// cross-field validation and tuple parsing turn it into a config.Config.
type rawFlags struct {
	bufferSize int
	numTiers   int
	memSizes   string
	patterns   string
	tierSizes  string
	zipfS      float64
	runningSec float64
	ratio      float64
	sampleSec  float64
	policyType string
	hotMs      int64
	coldMs     int64
	hotCount   uint64
	coldCount  uint64
	recencyW   float64
	freqW      float64
	scanSec    float64
	cacheRing  bool
	output     string
	periodic   string
}

func parseFlags(args []string) (*rawFlags, error) {
	fs := flag.NewFlagSet("tieredmem", flag.ContinueOnError)
	r := &rawFlags{}

	fs.IntVar(&r.bufferSize, "buffer-size", 10, "ring buffer capacity")
	fs.IntVar(&r.numTiers, "num-tiers", 3, "tier topology: 2 or 3")
	fs.StringVar(&r.memSizes, "mem-sizes", "", "comma-separated per-tier capacity in pages, LOCAL,[REMOTE,]PMEM")
	fs.StringVar(&r.patterns, "patterns", "", "comma-separated pattern per client: uniform|hot|zipfian")
	fs.StringVar(&r.tierSizes, "client-tier-sizes", "", "semicolon-separated tuples of space-separated per-tier page counts, one tuple per client")
	fs.Float64Var(&r.zipfS, "zipfs", 1.5, "zipf skew factor")
	fs.Float64Var(&r.runningSec, "running-time", 1, "per-client workload duration in seconds")
	fs.Float64Var(&r.ratio, "ratio", 0.5, "read probability in [0,1]")
	fs.Float64Var(&r.sampleSec, "sample-rate", 1, "periodic metrics interval in seconds")
	fs.StringVar(&r.policyType, "policy-type", "lru", "lru|frequency|hybrid")
	fs.Int64Var(&r.hotMs, "hot-threshold", 100, "LRU/hybrid hot threshold in ms")
	fs.Int64Var(&r.coldMs, "cold-threshold", 1000, "LRU/hybrid cold threshold in ms")
	fs.Uint64Var(&r.hotCount, "hot-count", 10, "frequency/hybrid hot count threshold")
	fs.Uint64Var(&r.coldCount, "cold-count", 1, "frequency/hybrid cold count threshold")
	fs.Float64Var(&r.recencyW, "recency-weight", 1, "hybrid recency weight")
	fs.Float64Var(&r.freqW, "frequency-weight", 1, "hybrid frequency weight")
	fs.Float64Var(&r.scanSec, "scan-interval", 1, "pause after a full table scan, in seconds")
	fs.BoolVar(&r.cacheRing, "cache-ring", false, "enable the Clock Ring on the cache tier")
	fs.StringVar(&r.output, "output", "result/latency.csv", "final latency CDF output path")
	fs.StringVar(&r.periodic, "periodic-output", "result/periodic_metrics.csv", "periodic metrics output path")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return r, nil
}

// toConfig turns raw, parsed flags into a validated config.Config shape
// (cross-field Validate still runs separately in main).
func (r *rawFlags) toConfig() (*config.Config, error) {
	memSizes, err := parseMemSizes(r.memSizes, r.numTiers)
	if err != nil {
		return nil, err
	}
	patterns, err := splitNonEmpty(r.patterns, ",")
	if err != nil {
		return nil, err
	}
	tuples, err := splitTuples(r.tierSizes)
	if err != nil {
		return nil, err
	}
	if len(patterns) != len(tuples) {
		return nil, memtier.NewConfigError("patterns has %d entries but client-tier-sizes has %d", len(patterns), len(tuples))
	}

	clients := make([]config.ClientSpec, len(tuples))
	for i, t := range tuples {
		if len(t) != r.numTiers {
			return nil, memtier.NewConfigError("client %d: tier-sizes tuple has %d values, expected %d", i, len(t), r.numTiers)
		}
		cs := config.ClientSpec{Pattern: patterns[i], Local: t[0]}
		if r.numTiers == 3 {
			cs.Remote = t[1]
			cs.Pmem = t[2]
		} else {
			cs.Pmem = t[1]
		}
		clients[i] = cs
	}

	return &config.Config{
		BufferSize:      r.bufferSize,
		NumTiers:        r.numTiers,
		MemSizes:        memSizes,
		Clients:         clients,
		ZipfS:           r.zipfS,
		RunningTime:     time.Duration(r.runningSec * float64(time.Second)),
		Ratio:           r.ratio,
		SampleRate:      time.Duration(r.sampleSec * float64(time.Second)),
		PolicyType:      r.policyType,
		HotThresholdMs:  r.hotMs,
		ColdThresholdMs: r.coldMs,
		HotCount:        r.hotCount,
		ColdCount:       r.coldCount,
		RecencyWeight:   r.recencyW,
		FrequencyWeight: r.freqW,
		ScanInterval:    time.Duration(r.scanSec * float64(time.Second)),
		CacheRing:       r.cacheRing,
		Output:          r.output,
		PeriodicOutput:  r.periodic,
	}, nil
}

func parseMemSizes(s string, numTiers int) ([3]int, error) {
	var out [3]int
	parts, err := splitNonEmpty(s, ",")
	if err != nil {
		return out, err
	}
	if len(parts) != numTiers {
		return out, memtier.NewConfigError("mem-sizes has %d entries, expected %d for num-tiers=%d", len(parts), numTiers, numTiers)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return out, memtier.NewConfigError("mem-sizes: invalid integer %q", p)
		}
		if numTiers == 3 {
			out[i] = n
		} else if i == 0 {
			out[memtier.Local] = n
		} else {
			out[memtier.Pmem] = n
		}
	}
	return out, nil
}

func splitNonEmpty(s, sep string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, memtier.NewConfigError("required flag is empty")
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out, nil
}

// splitTuples parses "50 50 50;0 0 10" into [[50 50 50] [0 0 10]].
func splitTuples(s string) ([][]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, memtier.NewConfigError("client-tier-sizes is required")
	}
	tuples := strings.Split(s, ";")
	out := make([][]int, len(tuples))
	for i, t := range tuples {
		fields := strings.Fields(t)
		vals := make([]int, len(fields))
		for j, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, memtier.NewConfigError("client-tier-sizes: invalid integer %q in tuple %d", f, i)
			}
			vals[j] = n
		}
		out[i] = vals
	}
	return out, nil
}
