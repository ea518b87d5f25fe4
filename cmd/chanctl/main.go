package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dalnet/chanctl/internal/config"
	"github.com/dalnet/chanctl/internal/driver"
	"github.com/dalnet/chanctl/internal/events"
	"github.com/dalnet/chanctl/internal/irc"
	"github.com/dalnet/chanctl/internal/logger"
	"github.com/dalnet/chanctl/internal/metrics"
	"github.com/dalnet/chanctl/internal/queue"
	"github.com/dalnet/chanctl/internal/ratelimit"
	"github.com/dalnet/chanctl/internal/storage"
)

// Version information - set at build time via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// daemonEnv marks the re-executed daemon child.
const daemonEnv = "CHANCTL_DAEMON"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "chanctl",
		Short:         "IRC channel logger and command queue bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")

	root.AddCommand(
		runCmd(&configPath),
		versionCmd(),
		enqueueCmd(&configPath),
		logsCmd(&configPath),
		gcCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runCmd is the main daemon command.
func runCmd(configPath *string) *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to IRC and run the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Daemonize unless -x flag is set
			if !foreground {
				return daemonize()
			}
			if err := writePIDFile(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not write PID file: %v\n", err)
			}
			return runBot(*configPath)
		},
	}
	cmd.Flags().BoolVarP(&foreground, "foreground", "x", false, "Run in foreground (don't daemonize)")
	return cmd
}

// daemonize re-executes the binary detached from the terminal. The child
// writes the PID file and starts the real bot with -x.
func daemonize() error {
	if os.Getenv(daemonEnv) == "1" {
		if err := writePIDFile(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not write PID file: %v\n", err)
		}
		fmt.Printf("Now becoming a daemon\nMy pid is %d, this has been written to pid.txt\n", os.Getpid())

		args := append(os.Args[1:], "-x")
		cmd := exec.Command(os.Args[0], args...)
		cmd.Env = os.Environ()
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
		os.Exit(0)
	}

	// First fork
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to fork: %w", err)
	}
	os.Exit(0)
	return nil
}

func writePIDFile() error {
	return os.WriteFile("pid.txt", []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// loadConfig reads .env (if any) and the configuration file.
func loadConfig(configPath string) (*config.Config, error) {
	envErr := godotenv.Load()

	if configPath != "" && !filepath.IsAbs(configPath) {
		wd, _ := os.Getwd()
		configPath = filepath.Join(wd, configPath)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Environment-only deployments have no file.
		configPath = ""
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if envErr != nil && !os.IsNotExist(envErr) {
		return nil, fmt.Errorf("load .env: %w", envErr)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*storage.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}

func runBot(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	log.Info().Str("version", version).Str("nick", cfg.Nick).Msg("chanctl starting")

	irc.Version = version
	irc.BuildDate = buildDate
	irc.GitCommit = gitCommit

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	in := make(chan events.Event, cfg.EventBuffer)
	client := irc.NewClient(cfg, in, log)
	drv := driver.New(driver.Config{
		QueueInterval:    cfg.QueueInterval,
		GCInterval:       cfg.GCInterval,
		SnapshotInterval: cfg.SnapshotInterval,
		SentRetention:    cfg.SentRetention,
		RateLimit: ratelimit.Config{
			ShortWindow: cfg.RateShortWindow,
			ShortLimit:  cfg.RateShortLimit,
			LongWindow:  cfg.RateLongWindow,
			LongLimit:   cfg.RateLongLimit,
			BanDuration: cfg.RateBanDuration,
		},
	}, in, store, client, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error { return drv.Run(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.MetricsAddr, log) })
	}

	err = g.Wait()
	log.Info().Msg("chanctl stopped")
	return err
}

// versionCmd prints the version and exits.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chanctl version %s\n", version)
			fmt.Printf("Built: %s\n", buildDate)
			fmt.Printf("Commit: %s\n", gitCommit)
		},
	}
}

// enqueueCmd adds a command to the pending queue.
func enqueueCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <context> <text...>",
		Short: "Queue a command or message for the bot to send",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			text := strings.Join(args[1:], " ")
			id, err := store.EnqueueCommand(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d\n", id)
			return nil
		},
	}
	// "/mode -o alice" must not be read as flags.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// logsCmd prints recent audit records for a context, oldest first.
func logsCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs <context>",
		Short: "Show recent audit records for a channel or nick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.RecentAudit(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i := len(recs) - 1; i >= 0; i-- {
				r := recs[i]
				fmt.Fprintf(out, "[%s] <%s> %s\n", r.Timestamp.UTC().Format("2006-01-02 15:04:05"), r.Sender, r.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "number", "n", 10, "Number of records to show")
	return cmd
}

// gcCmd runs one queue garbage collection pass.
func gcCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Purge sent commands older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			proc := queue.NewProcessor(store, nil, cfg.SentRetention, zerolog.Nop())
			n, err := proc.Collect(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d\n", n)
			return nil
		},
	}
}
