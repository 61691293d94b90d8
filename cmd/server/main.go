package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/NicolasFrouin/chat/internal/app"
	"github.com/NicolasFrouin/chat/internal/config"
	chatlog "github.com/NicolasFrouin/chat/internal/log"
	"github.com/NicolasFrouin/chat/internal/service/identity"
	"github.com/NicolasFrouin/chat/internal/store"
)

type options struct {
	configPath string
	addr       string
	logLevel   string
}

func main() {
	// Optional .env file; real environment variables take precedence.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:          "chat",
		Short:        "Realtime chat server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to the config file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "HTTP listen address")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the chat server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "users",
		Short: "List registered users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUsers(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	})

	return root
}

// loadConfig resolves configuration: defaults < file < env < flags.
func loadConfig(logOut io.Writer, opts options) (config.Config, *zerolog.Logger, error) {
	cfg, path, err := config.Load(chatlog.NewWithWriter(logOut, "info"), opts.configPath)
	if err != nil {
		return cfg, nil, err
	}
	cfg.UpdateFrom(config.Config{Addr: opts.addr, LogLevel: opts.logLevel})

	logger := chatlog.NewWithWriter(logOut, cfg.LogLevel)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func runServe(ctx context.Context, logOut io.Writer, opts options) error {
	cfg, logger, err := loadConfig(logOut, opts)
	if err != nil {
		return err
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Str("storage", cfg.StorageDriver).Msg("starting chat server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runUsers(ctx context.Context, out, logOut io.Writer, opts options) error {
	cfg, logger, err := loadConfig(logOut, opts)
	if err != nil {
		return err
	}

	st, err := app.OpenStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	users, err := identity.New(st).List(ctx)
	if err != nil {
		return err
	}
	printUsers(out, users)
	return nil
}

func printUsers(w io.Writer, users []*store.User) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Color", "Created"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, u := range users {
		table.Append([]string{u.ID, u.Name, u.Color, u.CreatedAt.Format(time.RFC3339)})
	}
	table.Render()
}
