package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/ehr/conceptsync/internal/config"
	"github.com/ehr/conceptsync/internal/domain/conceptsync"
	"github.com/ehr/conceptsync/internal/domain/valueset"
	"github.com/ehr/conceptsync/internal/platform/db"
	"github.com/ehr/conceptsync/internal/platform/fhir"
	"github.com/ehr/conceptsync/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "conceptsync",
		Short:         "Reconcile FHIR definitions with the concept dictionary",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the FHIR API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: every request is authenticated as admin; set ENV=production for real auth")
	}

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.newServer()
	if err != nil {
		return err
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.Store).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		ctx := context.Background()
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2})
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, migrations.FS))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})
	return cmd
}

func importCmd() *cobra.Command {
	var kind, locale string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a Questionnaire, ObservationDefinition, List or ValueSet from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			tag, err := language.Parse(locale)
			if err != nil {
				return fmt.Errorf("--locale: %w", err)
			}
			return withApp(func(ctx context.Context, a *app) error {
				res, warnings, err := importResource(ctx, a, data, kind, tag, dryRun)
				for _, w := range warnings {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "resource type; defaults to the file's resourceType")
	cmd.Flags().StringVar(&locale, "locale", "en", "locale of the names in the file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "translate without saving")
	return cmd
}

func exportCmd() *cobra.Command {
	var locale string
	cmd := &cobra.Command{
		Use:   "export <kind> <id>",
		Short: "Export a concept as a Questionnaire, ObservationDefinition or List",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := language.Parse(locale)
			if err != nil {
				return fmt.Errorf("--locale: %w", err)
			}
			return withApp(func(ctx context.Context, a *app) error {
				res, err := exportResource(ctx, a, args[0], args[1], tag)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&locale, "locale", "en", "locale of the exported names")
	return cmd
}

func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, newLogger(cfg.Env))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// importResource decodes data as kind (or its own resourceType) and runs it
// through the matching service.
func importResource(ctx context.Context, a *app, data []byte, kind string, locale language.Tag, dryRun bool) (interface{}, []string, error) {
	if kind == "" {
		var err error
		if kind, err = fhir.ResourceTypeOf(data); err != nil {
			return nil, nil, err
		}
	}

	switch strings.ToLower(kind) {
	case "questionnaire":
		var q fhir.Questionnaire
		if err := fhir.DecodeResource(data, &q); err != nil {
			return nil, nil, err
		}
		res, err := a.questionnaires.Import(ctx, &q, locale, dryRun)
		if err != nil {
			return nil, nil, err
		}
		return res.Resource, conceptsync.WarningMessages(res.Warnings), nil
	case "observationdefinition":
		var od fhir.ObservationDefinition
		if err := fhir.DecodeResource(data, &od); err != nil {
			return nil, nil, err
		}
		res, err := a.observations.Import(ctx, &od, locale, dryRun)
		if err != nil {
			return nil, nil, err
		}
		return res.Resource, conceptsync.WarningMessages(res.Warnings), nil
	case "list":
		var list fhir.ListResource
		if err := fhir.DecodeResource(data, &list); err != nil {
			return nil, nil, err
		}
		res, err := a.lists.Import(ctx, &list, locale, dryRun)
		if err != nil {
			return nil, nil, err
		}
		return res.Resource, conceptsync.WarningMessages(res.Warnings), nil
	case "valueset":
		var r fhir.ValueSet
		if err := fhir.DecodeResource(data, &r); err != nil {
			return nil, nil, err
		}
		vs := valueset.FromFHIR(&r)
		if dryRun {
			return vs.ToFHIR(), nil, nil
		}
		if vs.FHIRID == "" {
			if err := a.valueSets.CreateValueSet(ctx, vs); err != nil {
				return nil, nil, err
			}
		} else if _, err := a.valueSets.PutValueSet(ctx, vs.FHIRID, vs); err != nil {
			return nil, nil, err
		}
		return vs.ToFHIR(), nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported resource type %q", kind)
}

func exportResource(ctx context.Context, a *app, kind, id string, locale language.Tag) (interface{}, error) {
	switch strings.ToLower(kind) {
	case "questionnaire":
		q, _, err := a.questionnaires.Get(ctx, id, locale)
		return q, err
	case "observationdefinition":
		od, _, err := a.observations.Get(ctx, id, locale)
		return od, err
	case "list":
		list, _, err := a.lists.Get(ctx, id, locale)
		return list, err
	case "valueset":
		return a.valueSets.ValueSetByID(ctx, id)
	}
	return nil, fmt.Errorf("unsupported resource type %q", kind)
}
