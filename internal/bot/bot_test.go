package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/carikbot/carik/internal/access"
	"github.com/carikbot/carik/internal/config"
	"github.com/carikbot/carik/internal/rolestore"
	"github.com/carikbot/carik/internal/runner"
)

// scriptRunner answers every container invocation successfully and
// records the argv of each call.
type scriptRunner struct {
	mu     sync.Mutex
	calls  [][]string
	stdout string
	fail   bool
}

func (r *scriptRunner) Run(_ context.Context, req runner.Request) (runner.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req.Args)
	r.mu.Unlock()
	if r.fail && len(req.Args) > 1 && req.Args[1] == "exec" {
		return runner.Result{Stderr: "boom", ExitCode: 2}, nil
	}
	if len(req.Args) > 1 && req.Args[1] == "exec" && len(req.Args) > 3 && req.Args[3] == "pgrep" {
		// No stray agent process.
		return runner.Result{ExitCode: 1}, nil
	}
	return runner.Result{Stdout: r.stdout}, nil
}

func newTestBot(t *testing.T, mutate func(*config.Config)) (*Bot, *rolestore.Memory, *scriptRunner) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	roles := rolestore.NewMemory()
	run := &scriptRunner{stdout: "agent-output"}
	b, err := New(cfg, roles, run)
	if err != nil {
		t.Fatal(err)
	}
	return b, roles, run
}

func TestPing(t *testing.T) {
	b, _, _ := newTestBot(t, nil)
	if got := b.HandleText(context.Background(), "anyone", "/ping"); got != "pong" {
		t.Errorf("ping = %q", got)
	}
}

func TestHelpFiltersByRole(t *testing.T) {
	b, roles, _ := newTestBot(t, nil)
	if err := roles.SetRole("boss", access.RoleOwner); err != nil {
		t.Fatal(err)
	}

	guest := b.HandleText(context.Background(), "stranger", "/help")
	owner := b.HandleText(context.Background(), "boss", "/help")

	if strings.Contains(guest, "/approve") {
		t.Error("guest help must not list owner commands")
	}
	if !strings.Contains(guest, "/ping") {
		t.Error("guest help should list /ping")
	}
	if !strings.Contains(owner, "/approve") || !strings.Contains(owner, "/kiro") {
		t.Errorf("owner help incomplete:\n%s", owner)
	}
}

func TestConnectApproveFlow(t *testing.T) {
	b, roles, _ := newTestBot(t, nil)
	if err := roles.SetRole("boss", access.RoleOwner); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	reply := b.HandleText(ctx, "newbie", "/connect")
	if !strings.Contains(reply, "requested") {
		t.Errorf("connect reply = %q", reply)
	}

	reply = b.HandleText(ctx, "boss", "/approve newbie")
	if !strings.Contains(reply, "newbie is now a user") {
		t.Errorf("approve reply = %q", reply)
	}
	role, err := roles.GetRole("newbie")
	if err != nil || role != access.RoleUser {
		t.Errorf("role = %v err = %v", role, err)
	}

	reply = b.HandleText(ctx, "newbie", "/connect")
	if !strings.Contains(reply, "already") {
		t.Errorf("second connect reply = %q", reply)
	}
}

func TestApproveUnknownIdentity(t *testing.T) {
	b, roles, _ := newTestBot(t, nil)
	if err := roles.SetRole("boss", access.RoleOwner); err != nil {
		t.Fatal(err)
	}
	reply := b.HandleText(context.Background(), "boss", "/approve ghost")
	if !strings.Contains(reply, "No pending request") {
		t.Errorf("reply = %q", reply)
	}
}

func TestApproveRequiresOwner(t *testing.T) {
	b, roles, _ := newTestBot(t, nil)
	if err := roles.SetRole("mod", access.RoleAdmin); err != nil {
		t.Fatal(err)
	}
	reply := b.HandleText(context.Background(), "mod", "/approve someone")
	if !strings.Contains(reply, "owner") {
		t.Errorf("admin must not approve, got %q", reply)
	}
}

func TestKiroDeniedForGuests(t *testing.T) {
	b, _, run := newTestBot(t, nil)
	reply := b.HandleText(context.Background(), "stranger", "/kiro do something")
	if !strings.Contains(reply, "user") {
		t.Errorf("reply = %q", reply)
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	if len(run.calls) != 0 {
		t.Errorf("denied command must not reach the runtime: %v", run.calls)
	}
}

func TestKiroPromptRunsAndIsRateLimited(t *testing.T) {
	b, roles, _ := newTestBot(t, nil)
	if err := roles.SetRole("dev", access.RoleUser); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	reply := b.HandleText(ctx, "dev", "/kiro fix the build")
	if reply != "agent-output" {
		t.Errorf("prompt reply = %q", reply)
	}

	reply = b.HandleText(ctx, "dev", "/kiro again")
	if !strings.Contains(reply, "Try again in") {
		t.Errorf("second prompt should be rate limited, got %q", reply)
	}

	// Exempt commands still work while rate limited.
	if got := b.HandleText(ctx, "dev", "/kiro-status"); !strings.Contains(got, "Model:") {
		t.Errorf("status while limited = %q", got)
	}
}

func TestOwnerBypassesRateLimit(t *testing.T) {
	b, roles, _ := newTestBot(t, nil)
	if err := roles.SetRole("boss", access.RoleOwner); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if reply := b.HandleText(ctx, "boss", fmt.Sprintf("/kiro task %d", i)); reply != "agent-output" {
			t.Fatalf("owner prompt %d = %q", i, reply)
		}
	}
}

func TestCodeAliasesKiro(t *testing.T) {
	b, roles, _ := newTestBot(t, nil)
	if err := roles.SetRole("dev", access.RoleUser); err != nil {
		t.Fatal(err)
	}
	if reply := b.HandleText(context.Background(), "dev", "/code refactor"); reply != "agent-output" {
		t.Errorf("code reply = %q", reply)
	}
}

func TestKiroExecFailureIsFriendly(t *testing.T) {
	b, roles, run := newTestBot(t, nil)
	run.fail = true
	if err := roles.SetRole("dev", access.RoleUser); err != nil {
		t.Fatal(err)
	}
	reply := b.HandleText(context.Background(), "dev", "/kiro break")
	if !strings.Contains(reply, "Agent error") {
		t.Errorf("reply = %q", reply)
	}
}

func TestKiroModelSwitch(t *testing.T) {
	b, roles, _ := newTestBot(t, nil)
	if err := roles.SetRole("dev", access.RoleUser); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if got := b.HandleText(ctx, "dev", "/kiro-model"); !strings.Contains(got, "sonnet") {
		t.Errorf("current model = %q", got)
	}
	if got := b.HandleText(ctx, "dev", "/kiro-model opus"); !strings.Contains(got, "opus") {
		t.Errorf("switch reply = %q", got)
	}
	got := b.HandleText(ctx, "dev", "/kiro-model gpt-99")
	if !strings.Contains(got, "not supported") {
		t.Errorf("unsupported reply = %q", got)
	}
}

func TestKiroWritePathEscape(t *testing.T) {
	b, roles, run := newTestBot(t, nil)
	if err := roles.SetRole("dev", access.RoleUser); err != nil {
		t.Fatal(err)
	}
	reply := b.HandleText(context.Background(), "dev", "/kiro-write ../../etc/passwd pwned")
	if !strings.Contains(reply, "outside") {
		t.Errorf("reply = %q", reply)
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	if len(run.calls) != 0 {
		t.Errorf("escaping path must not reach the runtime: %v", run.calls)
	}
}

func TestFreeFormGoesToChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hello from llm"}}]}`)
	}))
	t.Cleanup(srv.Close)

	b, _, _ := newTestBot(t, func(cfg *config.Config) {
		cfg.LLM.APIURL = srv.URL
	})
	got := b.HandleText(context.Background(), "anyone", "how are you?")
	if got != "hello from llm" {
		t.Errorf("chat reply = %q", got)
	}
}

func TestFreeFormSilentWhenChatDisabled(t *testing.T) {
	b, _, _ := newTestBot(t, nil)
	if got := b.HandleText(context.Background(), "anyone", "just talking"); got != "" {
		t.Errorf("expected no reply, got %q", got)
	}
}

func TestClearCommand(t *testing.T) {
	b, _, _ := newTestBot(t, nil)
	if got := b.HandleText(context.Background(), "anyone", "/clear"); !strings.Contains(got, "cleared") {
		t.Errorf("clear reply = %q", got)
	}
}

func TestApplyConfigTightensRate(t *testing.T) {
	b, roles, _ := newTestBot(t, func(cfg *config.Config) {
		cfg.Rate.MinuteMax = 5
	})
	if err := roles.SetRole("dev", access.RoleUser); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if reply := b.HandleText(ctx, "dev", "/kiro one"); reply != "agent-output" {
		t.Fatalf("first prompt = %q", reply)
	}

	next := config.Default() // back to 1/minute
	b.ApplyConfig(next)

	reply := b.HandleText(ctx, "dev", "/kiro two")
	if !strings.Contains(reply, "Try again in") {
		t.Errorf("tightened policy should deny, got %q", reply)
	}
}

func TestUsersListing(t *testing.T) {
	b, roles, _ := newTestBot(t, nil)
	if err := roles.SetRole("boss", access.RoleOwner); err != nil {
		t.Fatal(err)
	}
	if err := roles.SetRole("dev", access.RoleUser); err != nil {
		t.Fatal(err)
	}
	if err := roles.AddPendingGuest("newbie"); err != nil {
		t.Fatal(err)
	}

	got := b.HandleText(context.Background(), "boss", "/users")
	for _, want := range []string{"boss", "dev", "newbie", "Pending"} {
		if !strings.Contains(got, want) {
			t.Errorf("users listing missing %q:\n%s", want, got)
		}
	}
}
