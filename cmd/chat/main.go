package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	shared "genie-backend/cmd"
	"genie-backend/internal/chat"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type Config struct {
	ProxyURL     string        `env:"GENIE_PROXY_URL" envDefault:"http://localhost:3001/api"`
	Timeout      time.Duration `env:"GENIE_CLIENT_TIMEOUT" envDefault:"130s"`
	HistoryLimit int           `env:"GENIE_HISTORY_LIMIT" envDefault:"20"`
}

const helpText = `Commands:
  :next     next page of the latest table
  :prev     previous page of the latest table
  :chart    plot the latest answer
  :history  show the recorded exchanges of this conversation
  :help     show this help
  :quit     exit (also :q)`

func newRootCmd() *cobra.Command {
	var (
		cfg     Config
		envFile string
		verbose bool
	)

	rootCmd := &cobra.Command{
		Use:   "genie-chat",
		Short: "Chat with a Databricks Genie space through the proxy",
		Long: `genie-chat starts a conversation through the Genie proxy and relays every
line typed on stdin as a follow-up question. Tabular answers are paged 20 rows
at a time and can be plotted with :chart.`,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("error loading env file '%s': %w", envFile, err)
				}
			}

			var fromEnv Config
			if err := env.Parse(&fromEnv); err != nil {
				return fmt.Errorf("error parsing config: %w", err)
			}
			if !cmd.Flags().Changed("url") {
				cfg.ProxyURL = fromEnv.ProxyURL
			}
			if !cmd.Flags().Changed("timeout") {
				cfg.Timeout = fromEnv.Timeout
			}
			cfg.HistoryLimit = fromEnv.HistoryLimit

			if verbose {
				shared.SetupLogging(os.Stderr, "debug")
			} else {
				shared.SetupLogging(io.Discard, "error")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cfg)
		},
	}

	rootCmd.Flags().StringVar(&cfg.ProxyURL, "url", "http://localhost:3001/api", "Base url of the Genie proxy (env GENIE_PROXY_URL)")
	rootCmd.Flags().DurationVar(&cfg.Timeout, "timeout", 130*time.Second, "Per request timeout (env GENIE_CLIENT_TIMEOUT)")
	rootCmd.Flags().StringVar(&envFile, "env", "", "Path to an env file to load first")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log requests to stderr")

	return rootCmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	transport := chat.NewHTTPTransport(cfg.ProxyURL, cfg.Timeout)
	renderer := newTerminalRenderer(out)
	controller := chat.NewController(transport, renderer)

	slog.Debug("connecting to proxy", "url", cfg.ProxyURL)
	renderer.Info("Connecting to Genie at " + cfg.ProxyURL + ". Type :help for commands.")
	if err := controller.Start(ctx); err != nil {
		slog.Debug("error starting conversation, will retry on first message", "error", err)
	}
	renderer.Prompt()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case ":quit", ":q":
			return nil
		case ":next":
			renderer.NextPage()
		case ":prev":
			renderer.PrevPage()
		case ":chart":
			renderer.ShowChart()
		case ":help":
			renderer.Info(helpText)
		case ":history":
			showHistory(ctx, transport, controller.Session(), renderer, cfg.HistoryLimit)
		default:
			if controller.Submit(ctx, line) {
				continue
			}
		}
		renderer.Prompt()
	}
	return scanner.Err()
}

func showHistory(ctx context.Context, transport *chat.HTTPTransport, session *chat.Session, renderer *terminalRenderer, limit int) {
	id := session.ConversationID()
	if id == "" {
		renderer.Info("No conversation yet")
		return
	}
	items, err := transport.History(ctx, id, limit)
	if err != nil {
		renderer.Info("Could not load history: " + err.Error())
		return
	}
	renderer.ShowHistory(items)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatalf("genie-chat: %v", err)
	}
}
