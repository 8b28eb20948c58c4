package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/zentiam/assistd/internal/answer"
	"github.com/zentiam/assistd/internal/api"
	"github.com/zentiam/assistd/internal/chat"
	"github.com/zentiam/assistd/internal/config"
	"github.com/zentiam/assistd/internal/crawl"
	"github.com/zentiam/assistd/internal/feedback"
	"github.com/zentiam/assistd/internal/ingest"
	"github.com/zentiam/assistd/internal/knowledge"
	"github.com/zentiam/assistd/internal/learning"
	"github.com/zentiam/assistd/internal/metrics"
	"github.com/zentiam/assistd/internal/session"
	"github.com/zentiam/assistd/internal/sheets"
	"github.com/zentiam/assistd/internal/storage"
)

// Interval between automatic spreadsheet exports when an endpoint is
// configured. Exports are idempotent, so the cadence is not critical.
const sheetSyncInterval = 15 * time.Minute

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the assistd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running assistd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show assistd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "assistd.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "assistd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Refuse a double start: probe the health endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("assistd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("assistd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	ks, err := knowledge.NewStore(db, logger, int64(cfg.Upload.MaxBytes))
	if err != nil {
		return fmt.Errorf("loading knowledge base: %w", err)
	}

	var provider answer.Provider
	if cfg.Answer.ProviderURL != "" {
		provider = answer.NewEmbeddingProvider(cfg.Answer.ProviderURL, cfg.Answer.ProviderModel)
		logger.Info("embedding provider enabled", "url", cfg.Answer.ProviderURL, "model", cfg.Answer.ProviderModel)
	}
	engine := answer.NewEngine(answer.Config{
		TagThreshold:    cfg.Answer.TagThreshold,
		ChunkThreshold:  cfg.Answer.ChunkThreshold,
		ProviderTimeout: cfg.Answer.ProviderTimeoutDuration(),
	}, provider, logger)

	sessions := session.NewManager(db, logger)
	queue := learning.NewQueue(db, ks, logger)
	pipeline := chat.NewPipeline(sessions, ks, engine, queue, logger)
	collector := feedback.NewCollector(db, queue, logger)
	aggregator := metrics.NewAggregator(db)

	var appender sheets.Appender
	if cfg.Sheets.Endpoint != "" {
		appender = sheets.NewClient(cfg.Sheets.Endpoint, cfg.Sheets.Token)
		logger.Info("sheet export enabled", "endpoint", cfg.Sheets.Endpoint)
	}
	syncer := sheets.NewSyncer(db, appender, logger)

	crawler := crawl.New(ks, logger)
	worker := ingest.NewWorker(db, crawler, syncer, 500*time.Millisecond, logger)
	go worker.Run(ctx)

	if syncer.Configured() {
		go func() {
			ticker := time.NewTicker(sheetSyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := ingest.EnqueueSheetSync(db); err != nil {
						logger.Error("queueing periodic sheet sync", "error", err)
					}
				}
			}
		}()
	}

	handler := api.NewHandler(api.Deps{
		Store:          db,
		Knowledge:      ks,
		Sessions:       sessions,
		Pipeline:       pipeline,
		Feedback:       collector,
		Queue:          queue,
		Metrics:        aggregator,
		Syncer:         syncer,
		AdminTokenHash: cfg.Admin.TokenHash,
		SiteURL:        cfg.Site.URL,
		Log:            logger,
	})

	mcpSrv := api.NewMCPServer(api.MCPDeps{Knowledge: ks, Engine: engine, Metrics: aggregator})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("MCP stdio server error", "error", err)
		}
	}()
	logger.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "assistd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("assistd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop assistd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to assistd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Answer.ProviderURL != "" {
		provResp, err := client.Get(cfg.Answer.ProviderURL + "/api/version")
		if err != nil {
			printStatus("Embeddings", "provider not reachable at %s", cfg.Answer.ProviderURL)
		} else {
			provResp.Body.Close()
			printStatus("Embeddings", "%s via %s", cfg.Answer.ProviderModel, cfg.Answer.ProviderURL)
		}
	} else {
		printStatus("Embeddings", "disabled (lexical matching only)")
	}

	if cfg.Sheets.Endpoint != "" {
		printStatus("Sheet export", "%s", cfg.Sheets.Endpoint)
	} else {
		printStatus("Sheet export", "not configured")
	}
	if cfg.Site.URL != "" {
		printStatus("Site", "%s", cfg.Site.URL)
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
