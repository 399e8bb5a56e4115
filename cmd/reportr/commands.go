package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"reportr-backend/internal/config"
	"reportr-backend/internal/database"
	"reportr-backend/internal/events"
	"reportr-backend/internal/logging"
	"reportr-backend/internal/models"
	"reportr-backend/internal/renderer"
	"reportr-backend/internal/s3storage"
	"reportr-backend/internal/server"
	"reportr-backend/internal/services"
	"reportr-backend/internal/storage"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reportr",
		Short: "Activity report backend and operator tools",
		Long: `reportr runs the report API and offers maintenance commands that work directly on
the sessions and reports directories configured through the environment.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newSessionsCmd(),
		newCleanupCmd(),
		newRecoverCmd(),
		newRestoreCmd(),
		newInspectCmd(),
	)
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openRepository() (*storage.FileSystemRepository, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	repo, err := storage.NewFileSystemRepository(cfg.SessionsRoot, cfg.ReportsRoot)
	if err != nil {
		return nil, nil, err
	}
	return repo, cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Environment, cfg.LogLevel)
			srv, err := server.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()
			return srv.Serve(cmd.Context())
		},
	}
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored report sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every session, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openRepository()
			if err != nil {
				return err
			}
			sessions, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), sessions)
		},
	}, &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one session as JSON, followed by its event history when DATABASE_URL is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", args[0], err)
			}
			repo, cfg, err := openRepository()
			if err != nil {
				return err
			}
			session, err := repo.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if session == nil {
				return fmt.Errorf("session %s not found", id)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(session); err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return nil
			}
			history, err := loadEvents(cmd.Context(), cfg.DatabaseURL, id)
			if err != nil {
				return err
			}
			return printEvents(cmd.OutOrStdout(), history)
		},
	})
	return cmd
}

func newCleanupCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete unfinished sessions older than the TTL once",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, cfg, err := openRepository()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.SessionTTL
			}
			if ttl <= 0 {
				return fmt.Errorf("ttl must be positive")
			}
			logger := logging.New(cfg.Environment, cfg.LogLevel)
			removed := services.NewCleanupService(repo, ttl, ttl, nil, logger).RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired session(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Maximum age of an unfinished session (defaults to REPORTR_SESSION_TTL)")
	return cmd
}

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Settle sessions left generating by a crash",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openRepository()
			if err != nil {
				return err
			}
			n, err := repo.RecoverInterrupted(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recovered %d session(s)\n", n)
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <session-id>",
		Short: "Copy a published report back from the S3 bucket into the reports directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", args[0], err)
			}
			repo, cfg, err := openRepository()
			if err != nil {
				return err
			}
			if !cfg.S3Enabled() {
				return fmt.Errorf("S3_ENDPOINT must be set to restore reports")
			}
			session, err := repo.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if session == nil {
				return fmt.Errorf("session %s not found", id)
			}
			if session.GeneratedPDFPath == nil {
				return fmt.Errorf("session %s has never been generated", id)
			}

			store, err := s3storage.New(cfg)
			if err != nil {
				return err
			}
			data, err := store.DownloadArtifact(cmd.Context(), id, filepath.Base(*session.GeneratedPDFPath))
			if err != nil {
				return err
			}
			if _, err := renderer.Inspect(data); err != nil {
				return fmt.Errorf("downloaded object is not a readable report: %w", err)
			}
			ref, err := repo.PersistArtifact(cmd.Context(), id, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s (%d bytes)\n", ref.Path, ref.SizeBytes)
			return nil
		},
	}
}

func newInspectCmd() *cobra.Command {
	var showText bool
	cmd := &cobra.Command{
		Use:   "inspect <report.pdf>",
		Short: "Print page count and text of a generated report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			info, err := renderer.Inspect(data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pages: %d\nbytes: %d\n", info.Pages, len(data))
			if showText {
				fmt.Fprintln(out, info.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showText, "text", false, "Also print the extracted text")
	return cmd
}

func loadEvents(ctx context.Context, dbURL string, id uuid.UUID) ([]events.Event, error) {
	db, err := database.Open(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return database.NewEventStore(db).ListForSession(ctx, id)
}

func printEvents(w io.Writer, history []events.Event) error {
	fmt.Fprintln(w, "events:")
	if len(history) == 0 {
		fmt.Fprintln(w, "  (none)")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, event := range history {
		fmt.Fprintf(tw, "  %s\t%s", event.At.UTC().Format(time.RFC3339), event.Type)
		if len(event.Data) > 0 {
			data, err := json.Marshal(event.Data)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "\t%s", data)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func printSessions(w io.Writer, sessions []models.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tIMAGES\tBUILDING")
	for _, s := range sessions {
		building := "-"
		if s.FormFields != nil {
			building = s.FormFields.BuildingDetails.BuildingName
		}
		images := 0
		for _, group := range s.Images {
			images += len(group)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Status, s.CreatedAt.Format(time.RFC3339), images, building)
	}
	return tw.Flush()
}
