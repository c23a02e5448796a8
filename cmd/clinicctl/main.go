// Command clinicctl manages the clinic registry and issues admin sessions
// from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-serial/internal/app/bootstrap"
	"github.com/wolfman30/clinic-serial/internal/clinic"
	appconfig "github.com/wolfman30/clinic-serial/internal/config"
	httpmiddleware "github.com/wolfman30/clinic-serial/internal/http/middleware"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

type registry interface {
	ListClinics(ctx context.Context) ([]clinic.Clinic, error)
	UpsertAll(ctx context.Context, inputs []clinic.Input) error
	Delete(ctx context.Context, name string) error
}

// env is what subcommands need; tests swap the registry.
type env struct {
	cfg      *appconfig.Config
	registry func(ctx context.Context) (registry, func(), error)
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	e := &env{
		cfg: cfg,
		registry: func(ctx context.Context) (registry, func(), error) {
			client := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
			if client == nil {
				return nil, nil, fmt.Errorf("redis unavailable at %q", cfg.RedisAddr)
			}
			reg := clinic.NewRegistry(clinic.NewStore(client, cfg.SettingsKey), 1, time.Second, logger)
			return reg, func() { _ = client.Close() }, nil
		},
	}
	if err := newRootCmd(e).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Manage clinics and admin sessions",
		SilenceUsage:  true,
	}
	root.AddCommand(listCmd(e), upsertCmd(e), deleteCmd(e), tokenCmd(e))
	return root
}

func withRegistry(cmd *cobra.Command, e *env, fn func(ctx context.Context, reg registry) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	reg, closeFn, err := e.registry(ctx)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(ctx, reg)
}

func listCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print configured clinics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, e, func(ctx context.Context, reg registry) error {
				clinics, err := reg.ListClinics(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(clinics)
			})
		},
	}
}

func upsertCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Add or replace clinics from a JSON array",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			var in io.Reader = cmd.InOrStdin()
			if path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var inputs []clinic.Input
			if err := json.NewDecoder(in).Decode(&inputs); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			return withRegistry(cmd, e, func(ctx context.Context, reg registry) error {
				if err := reg.UpsertAll(ctx, inputs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %d clinic(s)\n", len(inputs))
				return nil
			})
		},
	}
	cmd.Flags().StringP("file", "f", "", "JSON file with clinic definitions, - for stdin")
	return cmd
}

func deleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a clinic; existing appointments keep their snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			return withRegistry(cmd, e, func(ctx context.Context, reg registry) error {
				if err := reg.Delete(ctx, name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
				return nil
			})
		},
	}
}

func tokenCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin session token and CSRF value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			session, err := httpmiddleware.IssueAdminToken(e.cfg.AdminJWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(session)
		},
	}
	cmd.Flags().String("subject", "admin", "Actor recorded in the audit log")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Session lifetime")
	return cmd
}
