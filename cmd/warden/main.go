// Package main is the entry point for the warden CLI.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/warden-run/warden/internal/config"
	"github.com/warden-run/warden/internal/wsserver"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "warden",
		Short:         "A capability-mediated sandbox runtime for agent tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), runCmd(), toolsCmd(), fsdCmd(), configCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("warden %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// runCmd reads tool calls, one JSON object per line, dispatches each against
// a single workspace session, and prints one result per line.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Dispatch tool calls from a file or stdin against one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			seedDir, _ := cmd.Flags().GetString("seed")
			commitEnd, _ := cmd.Flags().GetBool("commit")

			app, err := buildApp(cfgPath)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			base, err := app.seedBase(ctx, seedDir)
			if err != nil {
				return err
			}
			session, err := app.runtime.OpenSession(ctx, base)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			out := json.NewEncoder(cmd.OutOrStdout())
			scanner := bufio.NewScanner(in)
			scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				res := app.runtime.Dispatch(ctx, line, session)
				if err := out.Encode(res); err != nil {
					return err
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			if commitEnd {
				ref, err := app.runtime.CommitSession(ctx, session)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "committed:", ref)
				return nil
			}
			return app.runtime.DiscardSession(ctx, session)
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("seed", "", "Directory whose contents become the session base")
	cmd.Flags().Bool("commit", false, "Commit the session on exit instead of discarding it")
	return cmd
}

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List registered tool manifests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			app, err := buildApp(cfgPath)
			if err != nil {
				return err
			}
			defer app.Close()

			for _, m := range app.registry.List() {
				mode := "sandboxed"
				if m.Trusted {
					mode = "trusted"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-10s %-10s %s\n",
					m.Key(), mode, capabilityList(m), m.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

// fsdCmd serves the workspace API so remote-backend runtimes can share one
// snapshot store.
func fsdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fsd",
		Short: "Serve the workspace API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			logger, err := buildLogger(cfg)
			if err != nil {
				return err
			}

			store, closeStore, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			srv := wsserver.New(wsserver.Options{
				Store:     store,
				Quota:     cfg.Workspace.QuotaBytes,
				ReapAfter: reapAfter(cfg),
				Logger:    logger,
			})
			stopReaper, err := srv.StartReaper()
			if err != nil {
				return err
			}
			defer stopReaper()

			httpSrv := &http.Server{
				Addr:         cfg.Server.Bind,
				Handler:      srv.Router(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			errc := make(chan error, 1)
			go func() {
				logger.Info("workspace service listening", "bind", cfg.Server.Bind)
				errc <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancelShutdown()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration OK")
			return nil
		},
	})
	return cmd
}
