package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sofmeright/webfreight/src/config"
	"github.com/sofmeright/webfreight/src/gitver"
)

func testContext() config.DeployContext {
	dc := config.NewDeployContext(gitver.Identity{
		Commit:         "0123456789abcdef",
		PackageName:    "site",
		PackageVersion: "1.4.0",
		RepoURL:        "https://github.com/acme/site",
		Actor:          "alice",
	})
	dc = dc.WithConfigRepo(&gitver.RepoStatus{
		RemoteURL:   "git@gitlab.example.com:acme/web-config.git",
		LocalCommit: "fedcba9876543210",
		UpToDate:    true,
	})
	return dc.WithConfig(config.Resolved{Env: "production"})
}

// capture records every request body posted to it.
type capture struct {
	mu     sync.Mutex
	bodies [][]byte
	status int
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.bodies = append(c.bodies, body)
	c.mu.Unlock()
	if c.status != 0 {
		w.WriteHeader(c.status)
		io.WriteString(w, "invalid_payload")
		return
	}
	io.WriteString(w, "ok")
}

func (c *capture) last(t *testing.T, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		t.Fatalf("no request received")
	}
	if err := json.Unmarshal(c.bodies[len(c.bodies)-1], v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestRenderCarriesIdentity(t *testing.T) {
	msg := Render(testContext(), Event{Phase: PhaseError, Detail: "upload", Err: errors.New("access denied")})

	if msg.Title != "site@1.4.0 → production" {
		t.Errorf("Title = %q", msg.Title)
	}
	if !strings.Contains(msg.Text, "Deploy failed: upload") || !strings.Contains(msg.Text, "access denied") {
		t.Errorf("Text = %q", msg.Text)
	}

	facts := map[string]string{}
	for _, f := range msg.Facts {
		facts[f.Name] = f.Value
	}
	if facts["Commit"] != "0123456" || facts["Actor"] != "alice" || facts["Config"] != "fedcba9" {
		t.Errorf("facts = %v", facts)
	}

	want := []Link{
		{Name: "Source commit", URL: "https://github.com/acme/site/commit/0123456789abcdef"},
		{Name: "Config commit", URL: "https://gitlab.example.com/acme/web-config/-/commit/fedcba9876543210"},
	}
	if len(msg.Links) != 2 || msg.Links[0] != want[0] || msg.Links[1] != want[1] {
		t.Errorf("Links = %v, want %v", msg.Links, want)
	}
}

func TestRenderBeforeResolve(t *testing.T) {
	dc := config.NewDeployContext(gitver.Identity{RepoURL: "https://github.com/acme/site"})
	msg := Render(dc, Event{Phase: PhaseDecrypting})
	if msg.Title != "site" {
		t.Errorf("Title = %q", msg.Title)
	}
	if len(msg.Links) != 0 {
		t.Errorf("no commit, no links: %v", msg.Links)
	}
}

func TestSlackSink(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(c.handler))
	defer srv.Close()

	n := New(Settings{SlackWebhook: srv.URL + "/services/T/B/secret", SlackChannel: "#deploys"}, nil)
	n.Notify(context.Background(), testContext(), Event{Phase: PhaseSuccess})

	var got slackPayload
	c.last(t, &got)
	if got.Channel != "#deploys" || got.Username != "webfreight" {
		t.Errorf("payload = %+v", got)
	}
	for _, want := range []string{":white_check_mark:", "*site@1.4.0 → production*", "Deployed", "0123456", "alice", "|Source commit>"} {
		if !strings.Contains(got.Text, want) {
			t.Errorf("text %q missing %q", got.Text, want)
		}
	}
}

func TestTeamsSink(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(c.handler))
	defer srv.Close()

	n := New(Settings{TeamsWebhook: srv.URL}, nil)
	n.Notify(context.Background(), testContext(), Event{Phase: PhaseBuilding, Detail: "2 entries"})

	var card teamsCard
	c.last(t, &card)
	if card.Type != "MessageCard" || card.ThemeColor != phaseColor(PhaseBuilding) {
		t.Errorf("card = %+v", card)
	}
	if len(card.Sections) != 1 || card.Sections[0].ActivityTitle != "Building: 2 entries" {
		t.Errorf("sections = %+v", card.Sections)
	}
	if len(card.PotentialAction) != 2 || card.PotentialAction[1].Type != "OpenUri" ||
		card.PotentialAction[1].Targets[0].URI != "https://gitlab.example.com/acme/web-config/-/commit/fedcba9876543210" {
		t.Errorf("actions = %+v", card.PotentialAction)
	}
}

func TestFailingSinkDoesNotBlockOthers(t *testing.T) {
	bad := &capture{status: http.StatusBadRequest}
	badSrv := httptest.NewServer(http.HandlerFunc(bad.handler))
	defer badSrv.Close()
	good := &capture{}
	goodSrv := httptest.NewServer(http.HandlerFunc(good.handler))
	defer goodSrv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	n := New(Settings{SlackWebhook: badSrv.URL + "/hooks/secret-token", TeamsWebhook: goodSrv.URL}, zap.New(core))

	// A cancelled run context must not suppress the final report.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, testContext(), Event{Phase: PhaseError, Err: errors.New("boom")})

	var card teamsCard
	good.last(t, &card)

	entries := logs.FilterMessage("notification failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one logged failure, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["sink"] != "slack" || fields["phase"] != "error" {
		t.Errorf("log fields = %v", fields)
	}
	if msg, _ := fields["error"].(string); strings.Contains(msg, "secret-token") || !strings.Contains(msg, "400") {
		t.Errorf("error %q should carry the status and hide the webhook path", msg)
	}
}

func TestSinkTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	core, logs := observer.New(zapcore.WarnLevel)
	n := New(Settings{SlackWebhook: srv.URL}, zap.New(core))
	n.Timeout = 50 * time.Millisecond

	start := time.Now()
	n.Notify(context.Background(), testContext(), Event{Phase: PhaseUploading})
	if time.Since(start) > 5*time.Second {
		t.Fatalf("Notify did not honour the sink timeout")
	}
	if logs.Len() != 1 {
		t.Fatalf("expected timeout to be logged, got %d entries", logs.Len())
	}
}

func TestSettings(t *testing.T) {
	env := map[string]string{EnvSlackWebhook: "https://hooks.slack.test/a"}
	s := SettingsFromEnv(func(k string) string { return env[k] })
	s = s.Merge(config.Resolved{
		Slack:        config.SlackSettings{Webhook: "https://ignored", Channel: "#ops"},
		TeamsWebhook: "https://teams.test/b",
	})
	want := Settings{SlackWebhook: "https://hooks.slack.test/a", SlackChannel: "#ops", TeamsWebhook: "https://teams.test/b"}
	if s != want {
		t.Fatalf("settings = %+v, want %+v", s, want)
	}
	if n := New(Settings{}, nil); len(n.Sinks) != 0 {
		t.Fatalf("no webhooks, no sinks")
	}
	var nilNotifier *Notifier
	nilNotifier.Notify(context.Background(), testContext(), Event{Phase: PhaseSuccess})
}
