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
	"golang.org/x/sync/errgroup"

	"github.com/nroy/coachd/internal/api"
	"github.com/nroy/coachd/internal/auth"
	"github.com/nroy/coachd/internal/coach"
	"github.com/nroy/coachd/internal/config"
	"github.com/nroy/coachd/internal/llm"
	"github.com/nroy/coachd/internal/profile"
	"github.com/nroy/coachd/internal/storage"
	"github.com/nroy/coachd/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coachd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpUser, _ := cmd.Flags().GetString("mcp-user")
		mcpProfile, _ := cmd.Flags().GetString("mcp-profile")
		return runServer(mcpUser, mcpProfile)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running coachd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coachd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().String("mcp-user", "", "username the MCP stdio surface acts as (disables MCP when empty)")
	startCmd.Flags().String("mcp-profile", "Default", "profile name the MCP stdio surface operates on")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "coachd.pid")
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

// buildDocumentStore assembles the ranked backend list from config. The
// configured backend goes first; the local file is always the fallback.
func buildDocumentStore(cfg config.Config) (profile.DocumentStore, error) {
	localPath := filepath.Join(cfg.Storage.DataDir, cfg.Storage.ProfileFile)
	backupPath := filepath.Join(cfg.Storage.DataDir, "profiles.backup.json")
	local := store.NewLocal(localPath)

	switch cfg.Storage.Backend {
	case "local":
		return store.NewRanked(backupPath, local), nil
	case "gist":
		if cfg.Gist.ID == "" || cfg.GitHub.Token == "" {
			return nil, fmt.Errorf("gist backend requires gist.id and COACHD_GITHUB_TOKEN")
		}
		gist := store.NewGist(cfg.Gist.ID, cfg.GitHub.Token, cfg.Storage.ProfileFile)
		return store.NewRanked(backupPath, gist, local), nil
	case "github":
		if cfg.GitHub.Repo == "" || cfg.GitHub.Token == "" {
			return nil, fmt.Errorf("github backend requires github.repo and COACHD_GITHUB_TOKEN")
		}
		gh := store.NewGitHub(cfg.GitHub.Repo, cfg.GitHub.Path, cfg.GitHub.Token)
		return store.NewRanked(backupPath, gh, local), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func runServer(mcpUser, mcpProfile string) error {
	fmt.Fprintf(os.Stderr, "coachd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("coachd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("coachd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the interaction log.
	db, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Assemble the profile document store and manager.
	docStore, err := buildDocumentStore(cfg)
	if err != nil {
		return err
	}
	defaults := profile.Profile{
		Name:     cfg.Profile.DefaultName,
		Title:    cfg.Profile.DefaultTitle,
		Location: cfg.Profile.DefaultLocation,
	}
	profileMgr := profile.NewManager(docStore, defaults)

	llmClient := llm.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	coachSvc := coach.New(llmClient, profileMgr)
	verifier := auth.NewVerifier(cfg.Auth.Users, profileMgr, db)

	apiSrv := api.NewServer(verifier, profileMgr, coachSvc, llmClient, db, cfg.Export.Dir)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: apiSrv.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "coachd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// MCP stdio surface, bound to a fixed identity chosen at startup.
	if mcpUser != "" {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Coach:    coachSvc,
			Profiles: profileMgr,
			Username: mcpUser,
			Profile:  mcpProfile,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)", "username", mcpUser, "profile", mcpProfile)
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("coachd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop coachd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to coachd (PID %d)", pid)
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

	printStatus("Model", "%s via %s", cfg.LLM.Model, cfg.LLM.BaseURL)
	printStatus("Storage backend", "%s", cfg.Storage.Backend)
	printStatus("Export dir", "%s", cfg.Export.Dir)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
