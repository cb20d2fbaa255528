// carik — chat bot with an embedded coding agent.
// Commands from chat are authorized, rate limited, and dispatched;
// agent prompts run inside a dedicated container.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carikbot/carik/internal/access"
	"github.com/carikbot/carik/internal/bot"
	"github.com/carikbot/carik/internal/config"
	"github.com/carikbot/carik/internal/rolestore"
	"github.com/carikbot/carik/internal/runner"
	"github.com/carikbot/carik/internal/telegram"
)

// version is set by ldflags at build time.
var version = "dev"

func main() {
	bot.Version = version

	var flagConfig string

	rootCmd := &cobra.Command{
		Use:   "carik",
		Short: "chat bot with an embedded coding agent",
		Long: `Carik serves chat commands through a role-gated, rate-limited pipeline
and drives a containerized coding agent on behalf of authorized users.`,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "carik.yaml", "path to the YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the Telegram bot",
		Long: `Long-polls the Telegram Bot API and serves messages until interrupted.
The config file is watched and hot-reloaded for rate limits and the
agent model list.

Examples:
  carik serve --config /etc/carik/config.yaml
  TELEGRAM_TOKEN=xxx carik serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flagConfig)
		},
	}

	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "run an interactive console session",
		Long: `Reads messages from stdin and prints replies. The console identity is
seeded as owner, so every command is available. Roles are kept in
memory only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(flagConfig)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("carik %s\n", version)
		},
	}

	rootCmd.AddCommand(serveCmd, consoleCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("no Telegram token: set telegram.token in %s or TELEGRAM_TOKEN", configPath)
	}

	roles, err := rolestore.Open(cfg.RoleDB)
	if err != nil {
		return fmt.Errorf("open role store: %w", err)
	}
	defer func() { _ = roles.Close() }()

	if cfg.Owner != "" {
		if err := roles.SetRole(cfg.Owner, access.RoleOwner); err != nil {
			return fmt.Errorf("seed owner: %w", err)
		}
	}

	b, err := bot.New(cfg, roles, runner.Exec{})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Hot-reload rate limits and the model list on config change. A
	// missing config file just means nothing to watch.
	if _, statErr := os.Stat(configPath); statErr == nil {
		reloader := config.NewReloader(configPath, b.ApplyConfig)
		go func() {
			if err := reloader.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("config watcher stopped: %v", err)
			}
		}()
	}

	client := telegram.NewClient(cfg.Telegram.Token, "", cfg.Telegram.PollTimeout.Std())
	poller := telegram.NewPoller(client, cfg.Telegram.PollTimeout.Std(), func(ctx context.Context, msg telegram.Message) {
		if msg.From == nil {
			return
		}
		identity := strconv.FormatInt(msg.From.ID, 10)
		reply := b.HandleText(ctx, identity, msg.Text)
		if reply == "" {
			return
		}
		if err := client.SendMessage(ctx, msg.Chat.ID, reply); err != nil && ctx.Err() == nil {
			log.Printf("send to chat %d: %v", msg.Chat.ID, err)
		}
	})

	log.Printf("carik %s serving", version)
	err = poller.Run(ctx)

	// The signal context is done; give cleanup its own deadline.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	b.Shutdown(stopCtx)

	if err != nil && ctx.Err() != nil {
		return nil // clean shutdown on signal
	}
	return err
}

func runConsole(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	const identity = "console"
	roles := rolestore.NewMemory()
	if err := roles.SetRole(identity, access.RoleOwner); err != nil {
		return err
	}

	b, err := bot.New(cfg, roles, runner.Exec{})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println("carik console — type a message, /help for commands, ctrl-d to quit")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := scanner.Text()
		if text == "" {
			continue
		}
		reply := b.HandleText(ctx, identity, text)
		if reply != "" {
			fmt.Println(reply)
		}
		if ctx.Err() != nil {
			break
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	b.Shutdown(stopCtx)
	return scanner.Err()
}
