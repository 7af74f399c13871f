// The searchsync command runs snapshot syncs for every definition in a
// config file: each source table is copied into its target index, with
// checkpoints on disk so an interrupted run resumes where it stopped.
//
// Unit size comes from BLOCK_SIZE and the checkpoint directory from
// CHECKPOINT_PATH; everything else is flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	searchsync "github.com/Hobby-Box/api-search-sync"
	"github.com/Hobby-Box/api-search-sync/bulkindex"
	"github.com/Hobby-Box/api-search-sync/checkpoint"
	"github.com/Hobby-Box/api-search-sync/config"
	"github.com/Hobby-Box/api-search-sync/snapshot"
	"github.com/Hobby-Box/api-search-sync/utils"
)

func main() {
	var (
		configPath  = flag.String("config", "", "sync definitions file, a JSON array")
		verbose     = flag.Bool("verbose", false, "debug logging")
		nprocs      = flag.Int("nprocs", 0, "worker concurrency, 0 means twice the CPU count")
		mode        = flag.String("mode", string(snapshot.MultiprocessAsync), "dispatch mode: synchronous, multithreaded, multiprocess, multithreaded_async or multiprocess_async")
		target      = flag.String("target", "elastic", "index target: elastic or pebble")
		esURL       = flag.String("es", "http://localhost:9200", "elasticsearch urls, comma separated")
		pebbleDir   = flag.String("pebble", "searchsync.db", "embedded index directory for target=pebble")
		metricsAddr = flag.String("metrics", "", "serve prometheus metrics on this address")
	)
	flag.Parse()

	if *configPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "usage: searchsync --config sync.json [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := utils.NewDefaultLogger(level)

	if err := run(*configPath, *mode, *target, *esURL, *pebbleDir, *metricsAddr, *nprocs, log); err != nil {
		log.Error("sync: " + err.Error())
		os.Exit(1)
	}
}

func run(configPath, mode, target, esURL, pebbleDir, metricsAddr string, nprocs int, log utils.Logger) error {
	defs, err := config.Load(configPath)
	if err != nil {
		return err
	}
	md, err := snapshot.ParseMode(mode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// After the first signal the runners drain; a second one kills us.
		<-ctx.Done()
		stop()
	}()

	store := checkpoint.NewStore(os.Getenv("CHECKPOINT_PATH"))
	collectors := snapshot.Metrics()

	var bulker snapshot.Bulker
	switch target {
	case "elastic":
		es, err := bulkindex.NewElastic(strings.Split(esURL, ","))
		if err != nil {
			return err
		}
		if err := es.Ping(ctx); err != nil {
			return err
		}
		bulker = es
	case "pebble":
		pb, err := bulkindex.OpenPebble(pebbleDir)
		if err != nil {
			return err
		}
		defer pb.Close()
		bulker = pb
		collectors = append(collectors, bulkindex.NewStoreCollector(pb))
	default:
		return fmt.Errorf("unknown target %q", target)
	}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors...)
		go serveMetrics(metricsAddr, reg, log)
	}

	// Definitions run concurrently but failures stay their own: a broken
	// table must not starve the rest of the file.
	var g errgroup.Group
	g.SetLimit(2)
	var failed atomic.Int32
	for _, def := range defs {
		g.Go(func() error {
			job := &searchsync.Job{
				Def:       def,
				Target:    bulker,
				Store:     store,
				Mode:      md,
				Nprocs:    nprocs,
				BlockSize: blockSize(log),
				Log:       log,
			}
			rep, err := job.Run(ctx)
			if err != nil {
				failed.Add(1)
				log.ErrorCtx(ctx, "sync: definition failed",
					"database", def.Name, "index", def.Index, "err", err)
				return nil
			}
			printReport(rep)
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d definitions failed", n, len(defs))
	}
	return nil
}

// blockSize reads BLOCK_SIZE, falling back to the snapshot default when
// unset or unusable.
func blockSize(log utils.Logger) int {
	raw := os.Getenv("BLOCK_SIZE")
	if raw == "" {
		return snapshot.DefaultBlockSize
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Warn("sync: ignoring BLOCK_SIZE", "value", raw)
		return snapshot.DefaultBlockSize
	}
	return n
}

func printReport(rep *snapshot.Report) {
	line := fmt.Sprintf("%s/%s %s: %s docs in %d units (%d failed), checkpoint %s, %s",
		rep.Database, rep.Index, rep.Mode,
		humanize.Comma(int64(rep.Docs)), rep.Units, len(rep.Failed),
		rep.Checkpoint, rep.Elapsed.Round(time.Millisecond))
	if !rep.CaughtUp {
		line += ", catch-up skipped"
	}
	fmt.Println(line)
}

func serveMetrics(addr string, reg *prometheus.Registry, log utils.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info("metrics: listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics: server stopped", "err", err)
	}
}
