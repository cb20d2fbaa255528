package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/carikbot/carik/internal/access"
	"github.com/carikbot/carik/internal/command"
	"github.com/carikbot/carik/internal/kiro"
	"github.com/carikbot/carik/internal/quote"
)

// replyLimit caps handler output so replies fit a single Telegram
// message (hard API limit 4096).
const replyLimit = 4000

// commands returns the full command table. Charged commands count
// against the per-identity quota; exempt ones do not.
func (b *Bot) commands() []command.Command {
	return []command.Command{
		{Name: "help", MinRole: access.RoleGuest, Help: "list available commands", Handler: b.cmdHelp},
		{Name: "about", MinRole: access.RoleGuest, Help: "show bot info", Handler: b.cmdAbout},
		{Name: "ping", MinRole: access.RoleGuest, Help: "check the bot is alive", Handler: b.cmdPing},
		{Name: "quote", MinRole: access.RoleGuest, Help: "show a random quote", Handler: b.cmdQuote},
		{Name: "clear", MinRole: access.RoleGuest, Help: "forget the chat history", Handler: b.cmdClear},
		{Name: "connect", MinRole: access.RoleGuest, Help: "request user access", Handler: b.cmdConnect},
		{Name: "approve", MinRole: access.RoleOwner, Help: "approve a pending guest: /approve <id>", Handler: b.cmdApprove},
		{Name: "users", MinRole: access.RoleAdmin, Help: "list known users and pending requests", Handler: b.cmdUsers},
		{Name: "kiro", MinRole: access.RoleUser, Charged: true, Help: "send a prompt to the coding agent", Handler: b.cmdKiro},
		{Name: "code", MinRole: access.RoleUser, Charged: true, Help: "alias of /kiro", Handler: b.cmdKiro},
		{Name: "kiro-status", MinRole: access.RoleUser, Help: "show agent session state", Handler: b.cmdKiroStatus},
		{Name: "kiro-log", MinRole: access.RoleUser, Help: "show the last agent output", Handler: b.cmdKiroLog},
		{Name: "kiro-kill", MinRole: access.RoleUser, Help: "terminate the agent session", Handler: b.cmdKiroKill},
		{Name: "kiro-new", MinRole: access.RoleUser, Help: "reset the session and container", Handler: b.cmdKiroNew},
		{Name: "kiro-fresh", MinRole: access.RoleUser, Help: "start a fresh conversation", Handler: b.cmdKiroFresh},
		{Name: "kiro-model", MinRole: access.RoleUser, Help: "show or switch the agent model", Handler: b.cmdKiroModel},
		{Name: "kiro-ls", MinRole: access.RoleUser, Charged: true, Help: "list workspace files: /kiro-ls [dir]", Handler: b.cmdKiroLs},
		{Name: "kiro-read", MinRole: access.RoleUser, Charged: true, Help: "read a workspace file: /kiro-read <file>", Handler: b.cmdKiroRead},
		{Name: "kiro-write", MinRole: access.RoleUser, Charged: true, Help: "write a workspace file: /kiro-write <file> <content>", Handler: b.cmdKiroWrite},
	}
}

func (b *Bot) cmdHelp(ctx context.Context, identity, args string) (string, error) {
	role, err := b.roles.GetRole(identity)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("Available commands:\n")
	for _, cmd := range b.registry.All() {
		if !role.AtLeast(cmd.MinRole) {
			continue
		}
		fmt.Fprintf(&sb, "%s%s — %s\n", b.prefix, cmd.Name, cmd.Help)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Bot) cmdAbout(context.Context, string, string) (string, error) {
	return fmt.Sprintf("Carik %s — a chat bot with an embedded coding agent.", Version), nil
}

func (b *Bot) cmdPing(context.Context, string, string) (string, error) {
	return "pong", nil
}

func (b *Bot) cmdQuote(context.Context, string, string) (string, error) {
	return quote.Random(), nil
}

func (b *Bot) cmdClear(_ context.Context, identity, _ string) (string, error) {
	b.chat.Clear(identity)
	return "Conversation history cleared.", nil
}

func (b *Bot) cmdConnect(_ context.Context, identity, _ string) (string, error) {
	role, err := b.roles.GetRole(identity)
	if err != nil {
		return "", err
	}
	if role.AtLeast(access.RoleUser) {
		return fmt.Sprintf("You already have the %s role.", role), nil
	}
	if err := b.roles.AddPendingGuest(identity); err != nil {
		return "", err
	}
	return "Access requested. An owner will review it.", nil
}

func (b *Bot) cmdApprove(_ context.Context, _, args string) (string, error) {
	id := strings.TrimSpace(args)
	if id == "" {
		return fmt.Sprintf("Usage: %sapprove <id>", b.prefix), nil
	}
	if err := b.roles.ApproveGuest(id); err != nil {
		if errors.Is(err, access.ErrNotPending) {
			return fmt.Sprintf("No pending request from %q.", id), nil
		}
		return "", err
	}
	return fmt.Sprintf("%s is now a user.", id), nil
}

func (b *Bot) cmdUsers(context.Context, string, string) (string, error) {
	users, err := b.roles.ListUsers()
	if err != nil {
		return "", err
	}
	pending, err := b.roles.ListPending()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if len(users) == 0 {
		sb.WriteString("No known users.")
	} else {
		sb.WriteString("Users:\n")
		for _, u := range users {
			fmt.Fprintf(&sb, "  %s — %s\n", u.Identity, u.Role)
		}
	}
	if len(pending) > 0 {
		sb.WriteString("Pending:\n")
		for _, p := range pending {
			fmt.Fprintf(&sb, "  %s (requested %s)\n", p.Identity, p.RequestedAt.Format("2006-01-02 15:04"))
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Bot) cmdKiro(ctx context.Context, _, args string) (string, error) {
	prompt := strings.TrimSpace(args)
	if prompt == "" {
		return fmt.Sprintf("Usage: %skiro <prompt>", b.prefix), nil
	}
	out, err := b.agent.SendPrompt(ctx, prompt)
	if err != nil {
		return b.agentErr(err)
	}
	if out == "" {
		out = "(the agent produced no output)"
	}
	return truncate(out), nil
}

func (b *Bot) cmdKiroStatus(context.Context, string, string) (string, error) {
	st := b.agent.Status()
	var sb strings.Builder
	switch {
	case st.Busy:
		sb.WriteString("Agent: working on a prompt")
	case st.Running:
		sb.WriteString("Agent: idle, container up")
	default:
		sb.WriteString("Agent: no container (starts on next prompt)")
	}
	fmt.Fprintf(&sb, "\nModel: %s", st.Model)
	if st.ConversationActive {
		sb.WriteString("\nConversation: active")
	} else {
		sb.WriteString("\nConversation: none")
	}
	if !st.LastActivity.IsZero() {
		fmt.Fprintf(&sb, "\nLast activity: %s", st.LastActivity.Format("2006-01-02 15:04:05"))
	}
	return sb.String(), nil
}

func (b *Bot) cmdKiroLog(context.Context, string, string) (string, error) {
	out, busy := b.agent.ReadLog()
	if out == "" {
		if busy {
			return "A prompt is running; no output captured yet.", nil
		}
		return "No agent output yet.", nil
	}
	if busy {
		return truncate("(a prompt is still running; showing the previous output)\n" + out), nil
	}
	return truncate(out), nil
}

func (b *Bot) cmdKiroKill(ctx context.Context, _, _ string) (string, error) {
	if err := b.agent.Kill(ctx); err != nil {
		return b.agentErr(err)
	}
	return "Agent session terminated.", nil
}

func (b *Bot) cmdKiroNew(ctx context.Context, _, _ string) (string, error) {
	if err := b.agent.Kill(ctx); err != nil {
		return b.agentErr(err)
	}
	return "Session reset. The next prompt starts a fresh agent.", nil
}

func (b *Bot) cmdKiroFresh(_ context.Context, _, _ string) (string, error) {
	if err := b.agent.StartFresh(); err != nil {
		return b.agentErr(err)
	}
	return "Conversation reset. The next prompt starts a new conversation.", nil
}

func (b *Bot) cmdKiroModel(_ context.Context, _, args string) (string, error) {
	name := strings.TrimSpace(args)
	if name == "" {
		return fmt.Sprintf("Current model: %s", b.agent.Status().Model), nil
	}
	if err := b.agent.SwitchModel(name); err != nil {
		return b.agentErr(err)
	}
	return fmt.Sprintf("Model switched to %s.", name), nil
}

func (b *Bot) cmdKiroLs(ctx context.Context, _, args string) (string, error) {
	dir := strings.TrimSpace(args)
	if dir == "" {
		dir = "."
	}
	out, err := b.agent.ListFiles(ctx, dir)
	if err != nil {
		return b.agentErr(err)
	}
	if out == "" {
		return "(empty)", nil
	}
	return truncate(out), nil
}

func (b *Bot) cmdKiroRead(ctx context.Context, _, args string) (string, error) {
	file := strings.TrimSpace(args)
	if file == "" {
		return fmt.Sprintf("Usage: %skiro-read <file>", b.prefix), nil
	}
	out, err := b.agent.ReadFile(ctx, file)
	if err != nil {
		return b.agentErr(err)
	}
	if out == "" {
		return "(empty file)", nil
	}
	return truncate(out), nil
}

func (b *Bot) cmdKiroWrite(ctx context.Context, _, args string) (string, error) {
	file, content, ok := strings.Cut(strings.TrimSpace(args), " ")
	if !ok || file == "" {
		return fmt.Sprintf("Usage: %skiro-write <file> <content>", b.prefix), nil
	}
	if err := b.agent.WriteFile(ctx, file, content); err != nil {
		return b.agentErr(err)
	}
	return fmt.Sprintf("Wrote %s.", file), nil
}

// agentErr maps expected agent failures to user-facing replies.
// Unexpected errors propagate so the dispatcher logs and normalizes
// them.
func (b *Bot) agentErr(err error) (string, error) {
	var execErr *kiro.ExecFailedError
	var modelErr *kiro.UnsupportedModelError
	switch {
	case errors.Is(err, kiro.ErrAgentBusy):
		return "The agent is busy with another request. Try again shortly.", nil
	case errors.Is(err, kiro.ErrAgentTimeout):
		return fmt.Sprintf("The agent did not answer in time. It may still be working; check %skiro-log in a bit.", b.prefix), nil
	case errors.Is(err, kiro.ErrAgentUnavailable):
		return "The agent container is unavailable. It will be recreated on the next prompt.", nil
	case errors.Is(err, kiro.ErrPathEscape):
		return "That path is outside the agent workspace.", nil
	case errors.As(err, &execErr):
		return truncate("Agent error: " + execErr.Error()), nil
	case errors.As(err, &modelErr):
		return modelErr.Error(), nil
	default:
		return "", err
	}
}

// truncate clips long replies to the transport limit.
func truncate(s string) string {
	if len(s) <= replyLimit {
		return s
	}
	return s[:replyLimit] + "\n[output truncated]"
}
