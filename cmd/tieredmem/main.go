// Command tieredmem runs the tiered-memory page manager: it wires a
// synthetic workload generator to the Page Table through a ring buffer and
// drives migration via a configurable scan/policy loop, emitting a
// periodic metrics CSV and a final latency-CDF CSV.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tieredmem/tieredmem/internal/config"
	"github.com/tieredmem/tieredmem/internal/metrics"
	"github.com/tieredmem/tieredmem/internal/pagetable"
	"github.com/tieredmem/tieredmem/internal/ring"
	"github.com/tieredmem/tieredmem/internal/scanner"
	"github.com/tieredmem/tieredmem/internal/server"
	"github.com/tieredmem/tieredmem/internal/tier"
	"github.com/tieredmem/tieredmem/internal/workload"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log := newLogger()

	raw, err := parseFlags(args)
	if err != nil {
		log.Error().Err(err).Msg("failed to parse flags")
		return 1
	}
	cfg, err := raw.toConfig()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}
	cfg.LogSummary(log)

	strategy, err := cfg.Strategy()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
		log.Error().Err(err).Msg("failed to create output directory")
		return 1
	}
	if err := os.MkdirAll(filepath.Dir(cfg.PeriodicOutput), 0o755); err != nil {
		log.Error().Err(err).Msg("failed to create periodic-output directory")
		return 1
	}

	sink := metrics.New(nil)
	allocator := tier.NewAllocator(log)
	table, err := pagetable.Init(cfg.ClientShapes(), cfg.MemSizes, cfg.NumTiers, cfg.CacheRing, allocator, sink, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize page table")
		return 1
	}

	periodicFile, err := os.Create(cfg.PeriodicOutput)
	if err != nil {
		log.Error().Err(err).Msg("failed to open periodic-output file")
		return 1
	}
	defer periodicFile.Close()

	periodicWriter, err := metrics.NewPeriodicWriter(periodicFile, sink, table, time.Now(), cfg.SampleRate)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize periodic metrics writer")
		return 1
	}

	buf := ring.New(cfg.BufferSize)
	scan := scanner.New(table, strategy, cfg.ScanInterval, log)
	srv := server.New(buf, table, table, scan, periodicWriter, len(cfg.Clients), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i, cl := range cfg.Clients {
		pageCount := pageCountForClient(cl, cfg.NumTiers)
		gen := workload.New(i, pageCount, workload.Pattern(cl.Pattern), cfg.Ratio, cfg.ZipfS, cfg.RunningTime, int64(i)+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen.Run(ctx, buf)
		}()
	}

	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Run(ctx) }()

	wg.Wait()
	var srvErr error
	select {
	case srvErr = <-srvDone:
	case <-time.After(cfg.RunningTime + 5*time.Second):
		stop()
		srvErr = <-srvDone
	}
	if srvErr != nil {
		log.Error().Err(srvErr).Msg("server exited with an error")
		return 1
	}

	outFile, err := os.Create(cfg.Output)
	if err != nil {
		log.Error().Err(err).Msg("failed to open output file")
		return 1
	}
	defer outFile.Close()
	if err := metrics.WriteCDF(outFile, sink); err != nil {
		log.Error().Err(err).Msg("failed to write latency CDF")
		return 1
	}

	log.Info().Msg("run complete")
	return 0
}

func pageCountForClient(c config.ClientSpec, numTiers int) int {
	if numTiers == 3 {
		return c.Local + c.Remote + c.Pmem
	}
	return c.Local + c.Pmem
}

// newLogger configures zerolog from the LOG_LEVEL environment variable,
// defaulting to info. It is the only place in the program that touches
// the environment for logging configuration; everywhere else takes an
// injected handle.
func newLogger() zerolog.Logger {
	level := strings.ToLower(os.Getenv("LOG_LEVEL"))
	zl := zerolog.InfoLevel
	switch level {
	case "trace":
		zl = zerolog.TraceLevel
	case "debug":
		zl = zerolog.DebugLevel
	case "info", "":
		zl = zerolog.InfoLevel
	case "warning", "warn":
		zl = zerolog.WarnLevel
	case "error":
		zl = zerolog.ErrorLevel
	case "fatal":
		zl = zerolog.FatalLevel
	default:
		fmt.Fprintf(os.Stderr, "unknown LOG_LEVEL %q, defaulting to info\n", level)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zl).
		With().Timestamp().Logger()
}
