package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/mailbeforecart/internal/auth"
	"github.com/dukerupert/mailbeforecart/internal/config"
	"github.com/dukerupert/mailbeforecart/internal/database"
	"github.com/dukerupert/mailbeforecart/internal/email"
	"github.com/dukerupert/mailbeforecart/internal/logging"
	"github.com/dukerupert/mailbeforecart/internal/model"
	"github.com/dukerupert/mailbeforecart/internal/server"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DBPath     string
	LogLevel   string
}

// NewRootCommand creates the root command for the mailbeforecart CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mailbeforecart",
		Short: "Abandoned cart recovery service",
		Long: `Captures shopper emails at add-to-cart time, sends a reminder when the
cart is abandoned, and stops once the shopper buys.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRemindCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewOperatorCommand(opts))

	return cmd
}

// app is everything a command needs, built from configuration.
type app struct {
	cfg    *config.Config
	db     *sql.DB
	srv    *server.Server
	logger *slog.Logger
}

func (a *app) Close() error {
	return a.db.Close()
}

func loadApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	mailer, err := email.New(cfg.Mail, logger.With("component", "mail"))
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		db:     db,
		srv:    server.New(db, cfg, mailer, logger),
		logger: logger,
	}, nil
}

// localAdmin grants a command-line invocation the operator capability the
// service requires for privileged operations.
func localAdmin(ctx context.Context) (context.Context, string) {
	const token = "local-cli"
	return auth.WithAuth(ctx, auth.AuthContext{Role: model.RoleAdmin, CSRFToken: token}), token
}
