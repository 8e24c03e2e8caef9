// Command batchworker hosts one replica of the daily extraction worker:
// it loads configuration, wires every adapter, exposes the health surface,
// and runs the Follower loop until signaled, following the teacher
// lineage's restapi_main "wire everything, then Run" shape.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gocql/gocql"

	"github.com/sharedcode/batchworker"
	"github.com/sharedcode/batchworker/cassandraprogress"
	"github.com/sharedcode/batchworker/fsoutput"
	"github.com/sharedcode/batchworker/healthapi"
	"github.com/sharedcode/batchworker/kafkapublish"
	"github.com/sharedcode/batchworker/pgreader"
	"github.com/sharedcode/batchworker/redislease"
	"github.com/sharedcode/batchworker/translators"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the worker's JSON configuration file")
	healthAddr := flag.String("health-addr", ":8080", "address the readiness/liveness HTTP surface listens on")
	redisAddr := flag.String("redis-addr", "localhost:6379", "address of the Redis instance backing the lease store")
	cassandraHosts := flag.String("cassandra-hosts", "127.0.0.1", "comma-separated Cassandra cluster hosts backing the progress store")
	flag.Parse()

	batchworker.ConfigureLogging()

	if err := run(*configPath, *healthAddr, *redisAddr, *cassandraHosts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, healthAddr, redisAddr, cassandraHosts string) error {
	cfg, err := batchworker.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	instanceID := batchworker.NewInstanceID()

	lease := redislease.NewStore(redislease.Options{Address: redisAddr}, "")

	cassConn, err := cassandraprogress.OpenConnection(cassandraprogress.Config{
		ClusterHosts: splitAndTrim(cassandraHosts),
		Consistency:  gocql.LocalQuorum,
	})
	if err != nil {
		return fmt.Errorf("opening cassandra connection: %w", err)
	}
	progress := cassandraprogress.NewStore(cassConn)

	db, err := sql.Open("postgres", cfg.SQL.ConnectionString)
	if err != nil {
		return fmt.Errorf("opening postgres connection: %w", err)
	}
	defer db.Close()

	// Columns is the view's full column set (§6 SQLConfig.Columns); an
	// empty list tells pgreader to select every column ("SELECT *"), but
	// then CSV rendering has no fixed column order to render against, so
	// a CSV-translated file requires Columns to be configured explicitly.
	columns := cfg.SQL.Columns
	reader, err := pgreader.Open(db, pgreader.Config{
		ViewName: cfg.SQL.ViewName,
		OrderBy:  cfg.SQL.OrderBy,
		Columns:  columns,
		PageSize: cfg.SQL.PageSize,
	})
	if err != nil {
		return fmt.Errorf("opening page reader: %w", err)
	}

	publisher, err := kafkapublish.Open(kafkapublish.Config{
		Brokers: cfg.Bus.BootstrapServers,
		Topic:   cfg.Bus.Topic,
	}, nil)
	if err != nil {
		return fmt.Errorf("opening kafka publisher: %w", err)
	}
	defer publisher.Close()

	registry := batchworker.NewTranslatorRegistry()
	for _, f := range cfg.Files {
		switch f.TranslatorID {
		case "csv":
			registry.Register(f.TranslatorID, translators.CSV(columns))
		case "json":
			registry.Register(f.TranslatorID, translators.JSON())
		}
	}

	trigger := batchworker.NewProgressTriggerGuardWithWindow(progress, cfg.Policies.DailyTriggerWindow)

	newWriter := func(fileID, fileName string) (batchworker.OutputWriter, error) {
		return fsoutput.New(filepath.Join(cfg.OutputRootPath, fileName), 0)
	}

	orch := batchworker.NewOrchestrator(cfg, instanceID, lease, progress, reader, registry, publisher, trigger, newWriter)

	health := &healthapi.Server{
		WorkerID:   cfg.WorkerID,
		InstanceID: instanceID,
		Reader:     reader,
		Lease:      lease,
		Progress:   progress,
		FileIDs:    fileIDs(cfg.Files),
	}
	healthServer := &http.Server{Addr: healthAddr, Handler: health.Router()}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, "health server stopped:", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	runErr := orch.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	healthServer.Shutdown(shutdownCtx)

	if runErr != nil && runErr != context.Canceled {
		return fmt.Errorf("orchestrator run ended: %w", runErr)
	}
	return nil
}

func fileIDs(files []batchworker.FileConfig) []string {
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.FileID
	}
	return ids
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
