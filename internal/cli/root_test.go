package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/rmed/simpleice/internal/config"
	"github.com/rmed/simpleice/internal/domain"
	"github.com/rmed/simpleice/internal/provider"
	"github.com/rmed/simpleice/internal/store"
	"github.com/rmed/simpleice/internal/store/jsonfile"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []provider.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, _ provider.Account, msg provider.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type testEnv struct {
	dir     string
	cfgPath string
	sender  *recordingSender
}

// newTestEnv writes a config pointing at a temp dir and replaces the sender
// and terminal detection for the duration of the test.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.SecretEnv, "")
	env := &testEnv{
		dir:     dir,
		cfgPath: filepath.Join(dir, "config.toml"),
		sender:  &recordingSender{},
	}
	content := fmt.Sprintf(`
[store]
path = %q
journal = %q

[mail]
host = "127.0.0.1"
port = 2525
from = "ice@example.com"
security = "none"

[log]
format = "json"
level = "warn"
`, filepath.Join(dir, "icemails.json"), filepath.Join(dir, "journal.db"))
	if err := os.WriteFile(env.cfgPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	origSender, origInteractive := newSender, interactive
	newSender = func() provider.Sender { return env.sender }
	interactive = func() bool { return false }
	t.Cleanup(func() {
		newSender = origSender
		interactive = origInteractive
	})
	return env
}

// run executes the CLI with args and returns stdout.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runWithInput(t, "", args...)
}

func (e *testEnv) runWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *testEnv) store() *jsonfile.Store {
	return jsonfile.New(filepath.Join(e.dir, "icemails.json"))
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

func TestLifecycle(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun(t, "new", "will", "--recipient", "heir@example.com", "--subject", "Last will", "--body", "Keys are under the mat.")
	if !strings.Contains(out, "Created will ~> Draft") {
		t.Errorf("new output = %q", out)
	}

	out = env.mustRun(t, "activate", "will", "--at", "2099-01-02 03:04")
	if !strings.Contains(out, "Activated will ~> Active (02/01/2099 03:04)") {
		t.Errorf("activate output = %q", out)
	}

	out = env.mustRun(t, "show", "will")
	for _, want := range []string{"will ~> Active", "To: heir@example.com", "Subject: Last will", "Keys are under the mat."} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	out = env.mustRun(t, "--json", "list")
	var listed []jsonIceMail
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("list --json: %v\n%s", err, out)
	}
	if len(listed) != 1 || listed[0].Status != "Active" || listed[0].TriggerAt == "" {
		t.Errorf("list --json = %+v", listed)
	}

	out = env.mustRun(t, "deactivate", "will", "--yes")
	if !strings.Contains(out, "Deactivated will ~> Draft") {
		t.Errorf("deactivate output = %q", out)
	}

	env.mustRun(t, "remove", "will", "--yes")
	out = env.mustRun(t, "list")
	if !strings.Contains(out, "No ICE mails found.") {
		t.Errorf("list after remove = %q", out)
	}
}

func TestNew_ReadsBodyFromStdin(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.runWithInput(t, "from stdin\n", "new", "will", "--recipient", "a@example.com", "--body", "-"); err != nil {
		t.Fatalf("new error: %v", err)
	}
	c, err := env.store().Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c[0].Body != "from stdin\n" {
		t.Errorf("body = %q", c[0].Body)
	}
}

func TestErrorsCarryKinds(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "new", "will", "--recipient", "a@example.com")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"duplicate", []string{"new", "will", "--recipient", "b@example.com"}, "DuplicateName"},
		{"missing", []string{"show", "nope"}, "NotFound"},
		{"past trigger", []string{"activate", "will", "--at", "2000-01-01 00:00"}, "InvalidTrigger"},
		{"bad trigger", []string{"activate", "will", "--at", "tomorrow-ish"}, "InvalidTrigger"},
		{"not active", []string{"deactivate", "will", "--yes"}, "NotActive"},
		{"blank rename", []string{"edit", "will", "--name", " "}, "InvalidName"},
		{"no name", []string{"show"}, "Error"},
		{"needs confirmation", []string{"remove", "will"}, "Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errorKind(err); got != tt.want {
				t.Errorf("errorKind() = %q, want %q (err: %v)", got, tt.want, err)
			}
		})
	}

	// Nothing above changed the stored mail.
	c, err := env.store().Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != 1 || c[0].Status != domain.StatusDraft || c[0].Recipient != "a@example.com" {
		t.Errorf("store changed: %+v", c)
	}
}

func TestEdit(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "new", "will", "--recipient", "a@example.com", "--subject", "old")

	env.mustRun(t, "edit", "will", "--name", "testament", "--subject", "new")
	m, err := env.store().Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if m[0].Name != "testament" || m[0].Subject != "new" || m[0].Recipient != "a@example.com" {
		t.Errorf("after edit: %+v", m[0])
	}

	if _, err := env.run(t, "edit", "testament"); err == nil {
		t.Error("edit without changes should fail when not interactive")
	}
}

func seedDue(t *testing.T, env *testEnv) {
	t.Helper()
	past := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	err := env.store().Save(context.Background(), store.Collection{
		{ID: "1", Name: "will", Recipient: "heir@example.com", Subject: "s", Body: "b", Status: domain.StatusActive, TriggerAt: &past},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCheck_DeliversDueMails(t *testing.T) {
	env := newTestEnv(t)
	seedDue(t, env)

	out := env.mustRun(t, "check")
	if !strings.Contains(out, "Sent 1, failed 0.") {
		t.Errorf("check output = %q", out)
	}
	if len(env.sender.sent) != 1 || env.sender.sent[0].Recipient != "heir@example.com" {
		t.Errorf("sent = %+v", env.sender.sent)
	}

	c, err := env.store().Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c[0].Status != domain.StatusSent || c[0].SentAt == nil {
		t.Errorf("after check: %+v", c[0])
	}

	out = env.mustRun(t, "--json", "history")
	var hist []jsonDelivery
	if err := json.Unmarshal([]byte(out), &hist); err != nil {
		t.Fatalf("history --json: %v\n%s", err, out)
	}
	if len(hist) != 1 || hist[0].Outcome != store.OutcomeSent || hist[0].Name != "will" {
		t.Errorf("history = %+v", hist)
	}

	out = env.mustRun(t, "show", "will")
	if !strings.Contains(out, "Delivery attempts: 1 (failed 0)") {
		t.Errorf("show output = %q", out)
	}

	// A second check finds nothing due.
	out = env.mustRun(t, "check")
	if !strings.Contains(out, "Sent 0, failed 0.") {
		t.Errorf("second check output = %q", out)
	}
}

func TestCheck_ReportsFailures(t *testing.T) {
	env := newTestEnv(t)
	seedDue(t, env)
	env.sender.err = provider.TransientError(errors.New("connection refused"))

	out, err := env.run(t, "--json", "check")
	if err == nil {
		t.Fatal("check should fail when a delivery fails")
	}
	if got := errorKind(err); got != "DeliveryTransient" {
		t.Errorf("errorKind() = %q, want DeliveryTransient", got)
	}

	var cycle jsonCycle
	if err := json.Unmarshal([]byte(out), &cycle); err != nil {
		t.Fatalf("check --json: %v\n%s", err, out)
	}
	if len(cycle.Failed) != 1 || cycle.Failed[0].ErrorKind != "DeliveryTransient" {
		t.Errorf("cycle = %+v", cycle)
	}

	c, err := env.store().Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c[0].Status != domain.StatusActive {
		t.Errorf("failed mail should stay Active, got %s", c[0].Status)
	}

	out = env.mustRun(t, "--json", "show", "will")
	var shown jsonIceMail
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("show --json: %v\n%s", err, out)
	}
	if shown.DeliveryAttempts == nil || *shown.DeliveryAttempts != (attemptCounts{Total: 1, Failed: 1}) {
		t.Errorf("delivery_attempts = %+v", shown.DeliveryAttempts)
	}
}

func TestShow_WithoutJournal(t *testing.T) {
	env := newTestEnv(t)
	seedDue(t, env)

	out := env.mustRun(t, "show", "will")
	if strings.Contains(out, "Delivery attempts") {
		t.Errorf("show before any check = %q", out)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "journal.db")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("show should not create the journal, stat err = %v", err)
	}
}

func TestHistory_JournalDisabled(t *testing.T) {
	env := newTestEnv(t)
	content := fmt.Sprintf("[store]\npath = %q\njournal = \"\"\n", filepath.Join(env.dir, "icemails.json"))
	if err := os.WriteFile(env.cfgPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := env.run(t, "history")
	if got := errorKind(err); got != "Config" {
		t.Errorf("errorKind() = %q, want Config (err: %v)", got, err)
	}
	if err == nil || !strings.Contains(err.Error(), "journal is disabled") {
		t.Errorf("err = %v", err)
	}

	// Without a journal, show still works and reports no attempts.
	seedDue(t, env)
	out := env.mustRun(t, "show", "will")
	if strings.Contains(out, "Delivery attempts") {
		t.Errorf("show output = %q", out)
	}
}

func TestCheck_IncompleteConfig(t *testing.T) {
	env := newTestEnv(t)
	if err := os.WriteFile(env.cfgPath, []byte("[mail]\nhost = \"\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := env.run(t, "check")
	if got := errorKind(err); got != "Config" {
		t.Errorf("errorKind() = %q, want Config (err: %v)", got, err)
	}
}

func TestCreateConfig(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "fresh", "config.toml")

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "create-config"})
	if err := root.Execute(); err != nil {
		t.Fatalf("create-config error: %v", err)
	}
	if !strings.Contains(out.String(), path) {
		t.Errorf("output = %q, want it to mention %s", out.String(), path)
	}
	if _, err := config.Load(path); err != nil {
		t.Errorf("written config does not load: %v", err)
	}

	root = NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "create-config"})
	err := root.Execute()
	if got := errorKind(err); got != "Config" {
		t.Errorf("second create-config: errorKind() = %q, want Config", got)
	}
}

func TestSecret(t *testing.T) {
	keyring.MockInit()
	env := newTestEnv(t)
	cfg := fmt.Sprintf("[mail]\nhost = \"h\"\nusername = \"me@example.com\"\n[store]\npath = %q\n",
		filepath.Join(env.dir, "icemails.json"))
	if err := os.WriteFile(env.cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	mail := config.MailConfig{Username: "me@example.com"}
	if _, err := resolveSecret(&mail); errorKind(err) != "Config" {
		t.Errorf("resolveSecret() before set = %v, want Config error", err)
	}

	if _, err := env.runWithInput(t, "hunter2\n", "secret", "set"); err != nil {
		t.Fatalf("secret set error: %v", err)
	}
	got, err := resolveSecret(&mail)
	if err != nil || got != "hunter2" {
		t.Errorf("resolveSecret() = %q, %v; want keyring value", got, err)
	}

	t.Setenv(config.SecretEnv, "from-env")
	if got, _ := resolveSecret(&mail); got != "from-env" {
		t.Errorf("env should win over keyring, got %q", got)
	}
	mail.Secret = "from-config"
	if got, _ := resolveSecret(&mail); got != "from-config" {
		t.Errorf("config should win, got %q", got)
	}

	env.mustRun(t, "secret", "delete")
	if _, err := store.NewKeyringSecretStore().LoadSecret("me@example.com"); !errors.Is(err, store.ErrSecretNotFound) {
		t.Errorf("secret still present after delete: %v", err)
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, fmt.Errorf("%q: %w", "will", domain.ErrNotFound))
	want := "Error [NotFound]: \"will\": ice mail not found\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2030-05-06 07:08", time.Date(2030, 5, 6, 7, 8, 0, 0, time.Local), false},
		{"2030-05-06T07:08", time.Date(2030, 5, 6, 7, 8, 0, 0, time.Local), false},
		{"2030-05-06", time.Date(2030, 5, 6, 0, 0, 0, 0, time.Local), false},
		{"2030-05-06T07:08:00Z", time.Date(2030, 5, 6, 7, 8, 0, 0, time.UTC), false},
		{" 2030-05-06 07:08 ", time.Date(2030, 5, 6, 7, 8, 0, 0, time.Local), false},
		{"06/05/2030", time.Time{}, true},
		{"", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseTrigger(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTrigger(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			if !errors.Is(err, domain.ErrInvalidTrigger) {
				t.Errorf("parseTrigger(%q) error = %v, want ErrInvalidTrigger", tt.in, err)
			}
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseTrigger(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger() error: %v", err)
	}
	logger.Debug().Str("mail", "will").Msg("hello")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["component"] != "scheduler" || entry["mail"] != "will" {
		t.Errorf("entry = %v", entry)
	}

	if _, err := newLogger(config.LogConfig{Level: "loud"}, &buf); errorKind(err) != "Config" {
		t.Errorf("bad level error = %v, want Config", err)
	}
	if _, err := newLogger(config.LogConfig{Format: "xml"}, &buf); errorKind(err) != "Config" {
		t.Errorf("bad format error = %v, want Config", err)
	}
}
