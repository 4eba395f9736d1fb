/*
main.go - auditor CLI

COMMANDS:
  init      Write a sample workspace (auditor.yml plus CSV inputs)
  run       Audit the workspace; prompts for corrections unless --batch
  report    Print a stored run (latest by default)
  reviews   List the reviews applied in a stored run
  serve     HTTP API over stored runs, re-auditing on server.refresh

FLAGS AND ENVIRONMENT:
  Every persistent flag can be set through AUDITOR_<FLAG>, dashes become
  underscores (AUDITOR_TODAY=2024-02-01). Flags win over auditor.yml.

GRACEFUL SHUTDOWN (serve):
  On SIGINT/SIGTERM the scheduler stops, in-flight requests get 30s to
  finish, then the store is closed.
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andykuo1/progress-auditor-sub001/api"
	"github.com/andykuo1/progress-auditor-sub001/config"
	"github.com/andykuo1/progress-auditor-sub001/report"
	"github.com/andykuo1/progress-auditor-sub001/runner"
	"github.com/andykuo1/progress-auditor-sub001/session"
	"github.com/andykuo1/progress-auditor-sub001/store/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "auditor",
	Short: "Weekly progress auditor",
	Long: `auditor checks weekly progress posts against a roster.
- Roster: participants, their owner keys and active periods.
- Leave: periods that push weekly due dates back.
- Submissions: posts, bound to week[N] by their header.
- Reviews: manual corrections, replayed on every run.
Each run resolves submissions to obligations, charges slip days for late
ones and lists whatever still needs a review.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AUDITOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory holding auditor.yml")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (overrides --workspace)")
	rootCmd.PersistentFlags().String("today", "", "audit as of this date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"workspace", "config", "today", "db", "json", "verbose"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(reviewsCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var sample string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if err := runner.WriteSample(workspace, sample); err != nil {
				return err
			}
			fmt.Printf("wrote sample %q to %s\n", sample, config.Path(workspace))
			return nil
		},
	}
	var ids []string
	for _, s := range runner.Samples() {
		ids = append(ids, s.ID)
	}
	cmd.Flags().StringVar(&sample, "sample", "cohort", "sample to write ("+strings.Join(ids, ", ")+")")
	return cmd
}

func runCmd() *cobra.Command {
	var batch bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Audit the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := runner.OpenStore(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			var op session.Operator
			if !batch {
				op = newPromptOperator(os.Stdin, os.Stdout, cfg.Now())
			}
			out, err := runner.New(cfg, store, logger).Audit(cmd.Context(), op)
			if err != nil {
				return err
			}

			if viper.GetBool("json") {
				if err := report.WriteJSON(os.Stdout, out.Document); err != nil {
					return err
				}
			} else {
				printDocument(out.Document)
				for _, p := range out.Problems {
					fmt.Fprintln(os.Stderr, "input:", p)
				}
			}
			if out.State != session.StateClean {
				return fmt.Errorf("run ended %s with %d open errors", out.State, len(out.Session.Open()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&batch, "batch", false, "never prompt; open errors end the run")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Print a stored run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStoredRun(cmd.Context(), args, func(store *sqlite.Store, run *sqlite.RunRecord) error {
				doc, err := store.Document(cmd.Context(), run)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return report.WriteJSON(os.Stdout, doc)
				}
				fmt.Printf("run %s  %s  generated %s\n", run.ID, run.State, run.GeneratedAt.Format(time.RFC3339))
				printDocument(doc)
				return nil
			})
		},
	}
	return cmd
}

func reviewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews [run-id]",
		Short: "List the reviews applied in a stored run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStoredRun(cmd.Context(), args, func(store *sqlite.Store, run *sqlite.RunRecord) error {
				reviews, err := store.Reviews(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reviews)
				}
				report.ReviewTable(os.Stdout, reviews)
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Outputs.DB == "" {
				return errors.New("serve needs outputs.db or --db")
			}
			store, err := runner.OpenStore(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer store.Close()

			auditor := runner.New(cfg, store, logger)
			scheduler := api.NewAuditScheduler(auditor, cfg.Server.Refresh, logger)
			scheduler.Start()
			defer scheduler.Stop()

			if addr == "" {
				addr = cfg.Server.Addr
			}
			server := &http.Server{
				Addr:         addr,
				Handler:      api.NewRouter(api.NewHandler(store, auditor, logger)),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-quit:
			}

			logger.Info("shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

// =============================================================================
// HELPERS
// =============================================================================

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads auditor.yml and applies flag and env overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.Load(viper.GetString("workspace"))
	}
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("today"); v != "" {
		cfg.Today = v
	}
	if v := viper.GetString("db"); v != "" {
		cfg.Outputs.DB = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withStoredRun opens the store and resolves args[0], or the latest run.
func withStoredRun(ctx context.Context, args []string, fn func(*sqlite.Store, *sqlite.RunRecord) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := runner.OpenStore(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("no database configured; set outputs.db or --db")
	}
	defer store.Close()

	var run *sqlite.RunRecord
	if len(args) == 1 {
		run, err = store.GetRun(ctx, args[0])
	} else {
		run, err = store.LatestRun(ctx)
	}
	if err != nil {
		return err
	}
	if run == nil {
		return errors.New("no stored run; audit with auditor run first")
	}
	return fn(store, run)
}

func printDocument(doc *report.Document) {
	report.SummaryTable(os.Stdout, doc.Participants)
	var open []report.ErrorEntry
	for _, e := range doc.Errors {
		if !e.Skipped {
			open = append(open, e)
		}
	}
	if len(open) > 0 {
		fmt.Printf("\n%d open errors\n", len(open))
		report.ErrorTable(os.Stdout, open)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
