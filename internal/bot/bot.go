// Package bot wires the command pipeline together: registry, access
// gate, dispatcher, agent session manager, and free-form chat.
package bot

import (
	"context"
	"fmt"
	"log"

	"github.com/carikbot/carik/internal/access"
	"github.com/carikbot/carik/internal/command"
	"github.com/carikbot/carik/internal/config"
	"github.com/carikbot/carik/internal/kiro"
	"github.com/carikbot/carik/internal/llm"
	"github.com/carikbot/carik/internal/ratelimit"
	"github.com/carikbot/carik/internal/runner"
)

// Version is stamped at build time via ldflags.
var Version = "dev"

// Bot is the assembled message pipeline. One instance serves all
// transports.
type Bot struct {
	roles      access.RoleStore
	limiter    *ratelimit.Limiter
	registry   *command.Registry
	dispatcher *command.Dispatcher
	chat       *llm.Client
	agent      *kiro.Manager
	prefix     string
}

// New assembles a bot from configuration. roles is the persistent role
// store; run executes container commands.
func New(cfg *config.Config, roles access.RoleStore, run runner.Runner) (*Bot, error) {
	limiter := ratelimit.New(ratelimit.Policy{
		MinuteMax: cfg.Rate.MinuteMax,
		HourMax:   cfg.Rate.HourMax,
	})
	gate := access.NewGate(roles, limiter)

	agent := kiro.New(run, kiroConfig(cfg.Kiro))
	chat := llm.New(llm.Config{
		APIURL:    cfg.LLM.APIURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout.Std(),
	})

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = command.DefaultPrefix
	}
	b := &Bot{
		roles:    roles,
		limiter:  limiter,
		registry: command.NewRegistry(),
		chat:     chat,
		agent:    agent,
		prefix:   prefix,
	}

	for _, cmd := range b.commands() {
		if err := b.registry.Register(cmd); err != nil {
			return nil, fmt.Errorf("register command %q: %w", cmd.Name, err)
		}
	}
	b.dispatcher = command.NewDispatcher(b.registry, gate, prefix)
	return b, nil
}

// kiroConfig maps the YAML config block onto the session manager's
// config.
func kiroConfig(k config.Kiro) kiro.Config {
	return kiro.Config{
		Runtime:       k.Runtime,
		Image:         k.Image,
		Container:     k.Container,
		HostWorkspace: k.HostWorkspace,
		Workspace:     k.Workspace,
		AgentBin:      k.AgentBin,
		Models:        k.Models,
		DefaultModel:  k.DefaultModel,
		PromptTimeout: k.PromptTimeout.Std(),
		FileTimeout:   k.FileTimeout.Std(),
		StartTimeout:  k.StartTimeout.Std(),
	}
}

// HandleText processes one incoming message and returns the reply.
// Commands go through the dispatcher; anything else goes to free-form
// chat. An empty reply means nothing should be sent.
func (b *Bot) HandleText(ctx context.Context, identity, text string) string {
	if reply, handled := b.dispatcher.Dispatch(ctx, identity, text); handled {
		return reply
	}

	if !b.chat.Enabled() {
		return ""
	}
	reply, err := b.chat.Chat(ctx, identity, text)
	if err != nil {
		log.Printf("chat for %s: %v", identity, err)
		return "Sorry, I could not reach the chat provider. Try again later."
	}
	return reply
}

// ApplyConfig applies a reloaded configuration to the running bot.
// Only hot-swappable settings take effect: rate policy and the agent
// model list. Transport and storage settings need a restart.
func (b *Bot) ApplyConfig(cfg *config.Config) {
	b.limiter.SetPolicy(ratelimit.Policy{
		MinuteMax: cfg.Rate.MinuteMax,
		HourMax:   cfg.Rate.HourMax,
	})
	b.agent.SetModels(cfg.Kiro.Models)
}

// Shutdown releases agent resources. The container is removed so no
// stray session outlives the bot.
func (b *Bot) Shutdown(ctx context.Context) {
	if err := b.agent.Kill(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
