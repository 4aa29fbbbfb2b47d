package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/observability"
	"github.com/spec-kit/issue-tracker/internal/persistence"
	"github.com/spec-kit/issue-tracker/internal/workflow"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ticketctl",
		Short:         "Operator tooling for the issue tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("json", false, "output JSON")
	root.AddCommand(migrateCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(ticketsCmd())
	root.AddCommand(workflowCmd())
	return root
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations to the configured Postgres database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{Use: "token", Short: "Manage access tokens"}

	var p domain.Principal
	var role string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Mint an access token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Role = domain.Role(role)
			if !p.Role.Valid() {
				return fmt.Errorf("invalid role %q", role)
			}
			cfg, _, err := loadEnv()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(auth.TokenOptions{
				Secret: cfg.Auth.JWTSecret,
				TTL:    cfg.Auth.AccessTokenTTL(),
			})
			token, exp, err := tokens.GenerateToken(p)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{"token": token, "expiresAt": exp})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&p.ID, "sub", "", "subject id")
	issue.Flags().StringVar(&p.Email, "email", "", "email claim")
	issue.Flags().StringVar(&p.Name, "name", "", "display name claim")
	issue.Flags().StringVar(&role, "role", string(domain.RoleCustomer), "customer or admin")
	_ = issue.MarkFlagRequired("sub")

	tok.AddCommand(issue)
	return tok
}

func ticketsCmd() *cobra.Command {
	tickets := &cobra.Command{Use: "tickets", Short: "Inspect tickets"}

	var reporter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tickets from the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			stores, err := persistence.OpenStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close(context.Background())

			var items []domain.Ticket
			if reporter != "" {
				items, err = stores.Tickets.ListByReporter(ctx, reporter)
			} else {
				items, err = stores.Tickets.ListAll(ctx)
			}
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), items)
			}
			renderTickets(cmd.OutOrStdout(), items)
			return nil
		},
	}
	list.Flags().StringVar(&reporter, "reporter", "", "only tickets filed by this reporter id")

	tickets.AddCommand(list)
	return tickets
}

func workflowCmd() *cobra.Command {
	wf := &cobra.Command{Use: "workflow", Short: "Inspect the status workflow"}
	wf.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the status transition table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadEnv()
			if err != nil {
				return err
			}
			engine := workflow.NewEngine(cfg.Workflow.Table())
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), engine.Table())
			}
			renderWorkflow(cmd.OutOrStdout(), engine)
			return nil
		},
	})
	return wf
}

func renderTickets(w io.Writer, items []domain.Ticket) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Reporter", "Assignee", "Comments", "Updated"})
	for _, t := range items {
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, t.Reporter, t.Assignee, len(t.Comments), t.UpdatedAt.Format(time.RFC3339)})
	}
	tw.Render()
}

func renderWorkflow(w io.Writer, engine *workflow.Engine) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"From", "To"})
	for _, from := range domain.TicketStatuses {
		targets := engine.Targets(from)
		if len(targets) == 0 {
			tw.AppendRow(table.Row{from, "(terminal)"})
			continue
		}
		for _, to := range targets {
			tw.AppendRow(table.Row{from, to})
		}
	}
	tw.Render()
}

func loadEnv() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
