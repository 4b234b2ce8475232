package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
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

	"github.com/borisletic/lti-qa-tool/internal/api"
	"github.com/borisletic/lti-qa-tool/internal/config"
	"github.com/borisletic/lti-qa-tool/internal/engine"
	"github.com/borisletic/lti-qa-tool/internal/ingest"
	"github.com/borisletic/lti-qa-tool/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LTI Q&A server (foreground)",
	Long: `Run the LTI Q&A server in the foreground.

The server answers LTI launches on POST /launch, serves the Q&A API under
/api and processes uploaded materials in a background worker.

Examples:
  ltiqa serve
  ltiqa serve --host 0.0.0.0
  ltiqa serve --watch ./materials --course 101`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		skipCheck, _ := cmd.Flags().GetBool("skip-check")
		watchDir, _ := cmd.Flags().GetString("watch")
		course, _ := cmd.Flags().GetString("course")
		if watchDir != "" && course == "" {
			return fmt.Errorf("--course is required with --watch")
		}
		return runServer(host, skipCheck, watchDir, course)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running ltiqa server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, Ollama and queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmdContext(cmd))
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the Q&A tools over MCP on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func init() {
	serveCmd.Flags().String("host", "127.0.0.1", "interface to listen on")
	serveCmd.Flags().Bool("skip-check", false, "do not verify Ollama models on startup")
	serveCmd.Flags().String("watch", "", "folder to keep in sync with --course")
	serveCmd.Flags().String("course", "", "course id for --watch")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "ltiqa.pid")
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

func runServer(host string, skipCheck bool, watchDir, course string) error {
	fmt.Fprintf(os.Stderr, "ltiqa version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	if cfg.Server.AdminToken == "" {
		slog.Warn("server.admin_token is not set; admin routes accept instructor sessions only")
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("ltiqa is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("ltiqa is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	a, err := openApp(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	if !skipCheck {
		if err := engine.EnsureReady(ctx, a.backend, cfg.Ollama.GenerateModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
			return err
		}
	}

	handler := api.NewHandler(api.Deps{
		Registry:   a.registry,
		Store:      a.store,
		Metrics:    m,
		AdminToken: cfg.Server.AdminToken,
		UploadDir:  a.uploadDir(),
	})

	addr := net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	worker := ingest.NewWorker(a.store, a.registry, m, 500*time.Millisecond)
	go worker.Run(ctx)

	if watchDir != "" {
		w := ingest.NewWatcher(a.registry, a.store, course, watchDir, ingest.DefaultSettle)
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("folder watch stopped", "dir", watchDir, "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "ltiqa listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// runMCP serves the MCP tools over stdio. Logs go to stderr since stdout
// carries the protocol.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{Registry: a.registry}, version)
	slog.Info("MCP server started (stdio transport)")
	err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
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
		printError("ltiqa is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop ltiqa (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to ltiqa (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	running := serverRunning(ctx, client)
	if running {
		printStatus("Server", "running on port %d", cfg.Server.Port)
	} else {
		printStatus("Server", "stopped")
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	backend := newBackend(cfg)
	if backend.IsRunning(checkCtx) {
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		printStatus("Generate model", "%s (%s)", cfg.Ollama.GenerateModel, modelState(checkCtx, backend, cfg.Ollama.GenerateModel))
		printStatus("Embed model", "%s (%s)", cfg.Ollama.EmbedModel, modelState(checkCtx, backend, cfg.Ollama.EmbedModel))
	} else {
		printStatus("Ollama", "not running")
		printStatus("Generate model", "%s", cfg.Ollama.GenerateModel)
		printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	}

	if running && cfg.Server.AdminToken != "" {
		if jobs, err := fetchJobs(ctx, client, 100); err == nil {
			pending := 0
			for _, j := range jobs {
				if j.Status == "pending" || j.Status == "running" {
					pending++
				}
			}
			printStatus("Jobs", "%s recent, %d queued", countLabel(len(jobs), 100), pending)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func serverRunning(ctx context.Context, client *apiClient) bool {
	hctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := client.get(hctx, "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func modelState(ctx context.Context, e engine.Engine, model string) string {
	if e.HasModel(ctx, model) {
		return "ready"
	}
	return "missing"
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
