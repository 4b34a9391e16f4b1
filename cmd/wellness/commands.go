package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/wellness.report/internal/api"
	"github.com/banshee-data/wellness.report/internal/chart"
	"github.com/banshee-data/wellness.report/internal/config"
	"github.com/banshee-data/wellness.report/internal/db"
	"github.com/banshee-data/wellness.report/internal/httputil"
	"github.com/banshee-data/wellness.report/internal/monitoring"
	"github.com/banshee-data/wellness.report/internal/security"
	"github.com/banshee-data/wellness.report/internal/version"
	"github.com/banshee-data/wellness.report/internal/worker"
)

type commonFlags struct {
	config *string
	db     *string
	debug  *bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		config: fs.String("config", "", "Scoring configuration file (.json)"),
		db:     fs.String("db", "", "SQLite database path (overrides db_path)"),
		debug:  fs.Bool("debug", false, "Enable debug logging"),
	}
}

// load reads the configuration named by --config, falling back to the
// defaults file when present and to built-in defaults otherwise.
func (c *commonFlags) load() (*config.ScoringConfig, error) {
	monitoring.Verbose = *c.debug

	var (
		cfg *config.ScoringConfig
		err error
	)
	switch {
	case *c.config != "":
		cfg, err = config.LoadScoringConfig(*c.config)
	case fileExists(config.DefaultConfigPath):
		cfg, err = config.LoadScoringConfig(config.DefaultConfigPath)
	default:
		cfg = config.DefaultScoringConfig()
	}
	if err != nil {
		return nil, err
	}
	if *c.db != "" {
		cfg.DBPath = c.db
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// newWorker opens the store and builds a scoring worker from cfg. The
// caller closes the returned store.
func newWorker(cfg *config.ScoringConfig) (*db.DB, *worker.DailyWorker, error) {
	cat, err := cfg.LoadCatalog()
	if err != nil {
		return nil, nil, err
	}
	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	w := worker.NewDailyWorker(store, cat, cfg.ToOptions())
	w.RunAt = cfg.GetRunAt()
	w.Interval = cfg.GetInterval()
	w.Location = cfg.GetLocation()
	return store, w, nil
}

func handleServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	common := addCommonFlags(fs)
	listen := fs.String("listen", "", "Listen address (overrides listen)")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	addr := cfg.GetListen()
	if *listen != "" {
		addr = *listen
	}

	store, w, err := newWorker(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	log.Printf("wellness %s: db %s, history %d days, daily run at %s",
		version.String(), store.Path(), cfg.GetHistoryLength(), cfg.GetRunAt())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()
	w.Metrics = metrics
	w.Start()
	defer w.Stop()

	mux := api.NewServer(store, w.Catalog, w).ServeMux()
	store.AttachAdminRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /version", func(rw http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(rw, map[string]string{
			"version":    version.Version,
			"git_sha":    version.GitSHA,
			"build_time": version.BuildTime,
		})
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           api.LoggingMiddleware(metrics.WrapHandler(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	wg.Wait()

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	default:
	}
	log.Printf("Graceful shutdown complete")
	return nil
}

func handleScore(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	common := addCommonFlags(fs)
	asJSON := fs.Bool("json", false, "Print the run report as JSON")
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	store, w, err := newWorker(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, runErr := w.RunOnce(ctx)
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		return runErr
	}

	fmt.Fprintf(out, "run %s for %s: scored %d, replayed %d, skipped %d\n",
		report.RunID, report.Day, len(report.Scored), len(report.Replayed), len(report.Skipped))
	for _, id := range report.Scored {
		latest, err := store.LatestScore(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  resident %d: %s\n", id, latest.Result)
	}
	return runErr
}

func handleChart(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("chart", flag.ExitOnError)
	common := addCommonFlags(fs)
	residentID := fs.Int64("resident", 0, "Resident id (required)")
	days := fs.Int("days", api.DefaultHistoryDays, "Number of most recent days to plot")
	outPath := fs.String("out", "", "Output file, .png or .html (default resident-<id>-<room>.png)")
	fs.Parse(args)

	if *residentID < 1 {
		return fmt.Errorf("--resident is required")
	}
	if *days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	res, err := store.GetResident(*residentID)
	if err != nil {
		return fmt.Errorf("resident %d: %w", *residentID, err)
	}
	history, err := store.ScoreHistory(res.ID, *days)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("resident %d has no scores yet", res.ID)
	}

	path := *outPath
	if path == "" {
		path = fmt.Sprintf("resident-%d-%s.png", res.ID, security.SanitizeFilename(res.Room))
	}
	if err := security.ValidateExportPath(path); err != nil {
		return err
	}
	title := fmt.Sprintf("Room %s", res.Room)
	points := chart.FromScores(history)

	if strings.EqualFold(filepath.Ext(path), ".html") {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := chart.RenderHTML(f, title, points); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	} else if err := chart.RenderPNG(path, title, points); err != nil {
		return err
	}

	fmt.Fprintf(out, "wrote %d days for resident %d to %s\n", len(points), res.ID, path)
	return nil
}

func handleMigrate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	return db.RunMigrateCommand(fs.Args(), cfg.GetDBPath(), out)
}

func handleVersion(out io.Writer) error {
	fmt.Fprintf(out, "wellness version %s\n", version.String())
	return nil
}
