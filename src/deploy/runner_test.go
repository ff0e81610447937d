package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/sofmeright/webfreight/src/build"
	"github.com/sofmeright/webfreight/src/config"
	"github.com/sofmeright/webfreight/src/entry"
	"github.com/sofmeright/webfreight/src/gitver"
	"github.com/sofmeright/webfreight/src/guard"
	"github.com/sofmeright/webfreight/src/notify"
	"github.com/sofmeright/webfreight/src/publish"
)

const configRemote = "git@github.com:acme/web-config.git"

type fakeInspector struct{ status *gitver.RepoStatus }

func (f fakeInspector) Status(context.Context, string) (*gitver.RepoStatus, error) {
	return f.status, nil
}

type fakeDecryptor struct {
	mu    sync.Mutex
	calls int
	out   []byte
}

func (f *fakeDecryptor) Decrypt(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.out, nil
}

type fakeBundler struct {
	mu       sync.Mutex
	requests []build.Request
}

func (f *fakeBundler) Name() string { return "fake" }

func (f *fakeBundler) Bundle(_ context.Context, req build.Request) (*build.Bundle, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	inject, err := json.Marshal(req.Inject)
	if err != nil {
		return nil, err
	}
	return &build.Bundle{
		Code:      []byte("globalThis." + req.Namespace + "=" + string(inject) + ";"),
		SourceMap: []byte(`{"version":3}`),
	}, nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    map[string]bool
}

func (m *memStore) Put(_ context.Context, key string, body []byte, _ string) error {
	if m.fail[key] {
		return errors.New("access denied")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
	return nil
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type recordingInvalidator struct{ paths []string }

func (r *recordingInvalidator) Invalidate(_ context.Context, _ string, paths []string) error {
	r.paths = append(r.paths, paths...)
	return nil
}

type recordingSink struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSink) phases() []notify.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Phase
	for _, m := range s.messages {
		out = append(out, m.Phase)
	}
	return out
}

func (s *recordingSink) last() notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[len(s.messages)-1]
}

type harness struct {
	dir       string
	configDir string
	status    *gitver.RepoStatus
	decryptor *fakeDecryptor
	bundler   *fakeBundler
	store     *memStore
	inv       *recordingInvalidator
	sink      *recordingSink
	out       bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:       dir,
		configDir: filepath.Join(dir, "config"),
		status:    &gitver.RepoStatus{RemoteURL: configRemote, LocalCommit: "fedcba9876543210", UpToDate: true},
		decryptor: &fakeDecryptor{out: []byte("api:\n  token: tok-1234567\n")},
		bundler:   &fakeBundler{},
		store:     &memStore{objects: map[string][]byte{}, fail: map[string]bool{}},
		inv:       &recordingInvalidator{},
		sink:      &recordingSink{},
	}
	writeFile(t, filepath.Join(h.configDir, "default.yml"), "s3bucket: site-bucket\ncloudfront: E2ABC\n")
	writeFile(t, filepath.Join(h.configDir, "production.yml"), "minify: true\npublic:\n  apiBase: https://api.example.com\n")
	writeFile(t, filepath.Join(h.configDir, guard.DefaultSecretsFile), "ENC[...]")
	writeFile(t, filepath.Join(dir, "src", "app.js"), "console.log(1)")
	return h
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func (h *harness) run(args []string, flags map[string]any) error {
	if _, ok := flags[config.KeyOutDir]; !ok {
		flags[config.KeyOutDir] = filepath.Join(h.dir, "build")
	}
	r := &Runner{
		Guard: &guard.Guard{
			Inspector: fakeInspector{status: h.status},
			Decryptor: h.decryptor,
		},
		Bundler: h.bundler,
		Stores: func(context.Context, config.Resolved, gitver.Identity) (publish.ObjectStore, publish.Invalidator, error) {
			return h.store, h.inv, nil
		},
		Notifier: &notify.Notifier{Sinks: []notify.Sink{h.sink}},
		Out:      &h.out,
	}
	return r.Run(context.Background(), Options{
		ConfigDir: h.configDir,
		Args:      args,
		Flags:     config.NewMapLayer("flags", flags),
		Environ:   config.EnvLayer{Prefix: config.EnvPrefix, Getenv: func(string) (string, bool) { return "", false }},
		Identity: gitver.Identity{
			Commit:         "0123456789abcdef",
			PackageName:    "site",
			PackageVersion: "1.4.0",
			RepoURL:        "https://github.com/acme/site",
			Actor:          "alice",
		},
	})
}

func (h *harness) entryArg() string {
	return filepath.Join(h.dir, "src", "app.js") + ":app.js"
}

func TestRunBuildAndPublish(t *testing.T) {
	h := newHarness(t)

	if err := h.run([]string{h.entryArg()}, map[string]any{config.KeyEnv: "production"}); err != nil {
		t.Fatalf("Run: %v\n%s", err, h.out.String())
	}

	if got, want := h.store.keys(), []string{"app.js", "app.js.map"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("uploaded %v, want %v", got, want)
	}
	if got, want := h.inv.paths, []string{"app.js", "app.js.map"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalidated %v, want %v", got, want)
	}
	want := []notify.Phase{notify.PhaseDecrypting, notify.PhaseBuilding, notify.PhaseUploading, notify.PhaseSuccess}
	if got := h.sink.phases(); !reflect.DeepEqual(got, want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}

	if len(h.bundler.requests) != 1 {
		t.Fatalf("bundler requests = %d", len(h.bundler.requests))
	}
	req := h.bundler.requests[0]
	if !req.Minify || req.Env != "production" || req.Namespace != "__WEBFREIGHT__" {
		t.Errorf("request = %+v", req)
	}
	public, _ := req.Inject["config"].(map[string]any)
	if req.Inject["version"] != "1.4.0" || public["apiBase"] != "https://api.example.com" {
		t.Errorf("inject = %v", req.Inject)
	}
	if secrets, _ := req.Inject["secrets"].(map[string]any); len(secrets) != 0 {
		t.Errorf("no secret may be injected unless exposed: %v", secrets)
	}

	plain, err := os.ReadFile(filepath.Join(h.configDir, "secrets.yml"))
	if err != nil || !strings.Contains(string(plain), "tok-1234567") {
		t.Fatalf("plaintext secrets not written: %q %v", plain, err)
	}
	for _, section := range []string{"── Upload ", "── Summary "} {
		if !strings.Contains(h.out.String(), section) {
			t.Errorf("missing %q section:\n%s", section, h.out.String())
		}
	}
	if !strings.Contains(h.out.String(), "1 entries") || !strings.Contains(h.out.String(), "2 files") {
		t.Errorf("summary rows missing:\n%s", h.out.String())
	}
}

func TestRunStaleConfigRepoStopsBeforeWork(t *testing.T) {
	h := newHarness(t)
	h.status = &gitver.RepoStatus{
		RemoteURL: configRemote,
		Errors:    []string{"uncommitted change: production.yml", "branch main has commits not pushed to origin/main"},
	}

	err := h.run([]string{h.entryArg()}, map[string]any{config.KeyEnv: "production"})
	if !errors.Is(err, guard.ErrConfigRepoStale) {
		t.Fatalf("expected ErrConfigRepoStale, got %v", err)
	}
	if h.decryptor.calls != 0 || len(h.bundler.requests) != 0 || len(h.store.keys()) != 0 {
		t.Fatalf("work ran after a failed guard: decrypt=%d build=%d upload=%v",
			h.decryptor.calls, len(h.bundler.requests), h.store.keys())
	}
	for _, e := range h.status.Errors {
		if !strings.Contains(h.out.String(), e) {
			t.Errorf("output does not list %q", e)
		}
	}
	if got := h.sink.phases(); !reflect.DeepEqual(got, []notify.Phase{notify.PhaseError}) {
		t.Fatalf("phases = %v", got)
	}
}

func TestRunMissingEntryStopsBeforeBuild(t *testing.T) {
	h := newHarness(t)

	err := h.run([]string{filepath.Join(h.dir, "src", "missing.js")}, map[string]any{config.KeyEnv: "production"})
	if !errors.Is(err, entry.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	if len(h.bundler.requests) != 0 || len(h.store.keys()) != 0 {
		t.Fatalf("no build or publish expected")
	}
	if last := h.sink.last(); last.Phase != notify.PhaseError {
		t.Fatalf("last phase = %s", last.Phase)
	}
}

func TestRunNoEntries(t *testing.T) {
	h := newHarness(t)
	err := h.run(nil, map[string]any{config.KeyEnv: "production"})
	if !errors.Is(err, entry.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestRunStaticDirectory(t *testing.T) {
	h := newHarness(t)
	dist := filepath.Join(h.dir, "dist")
	writeFile(t, filepath.Join(dist, "a.js"), "a")
	writeFile(t, filepath.Join(dist, "b.css"), "b")
	writeFile(t, filepath.Join(dist, "img", "logo.png"), "png")

	if err := h.run(nil, map[string]any{config.KeyEnv: "production", config.KeyStaticDir: dist}); err != nil {
		t.Fatalf("Run: %v\n%s", err, h.out.String())
	}
	if got, want := h.store.keys(), []string{"a.js", "b.css"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("uploaded %v, want %v", got, want)
	}
	if h.decryptor.calls != 0 || len(h.bundler.requests) != 0 {
		t.Fatalf("static deploys neither decrypt nor build")
	}
	want := []notify.Phase{notify.PhaseUploading, notify.PhaseSuccess}
	if got := h.sink.phases(); !reflect.DeepEqual(got, want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
}

func TestRunStaticDirectoryFromConfigFileSkipsDecryption(t *testing.T) {
	h := newHarness(t)
	dist := filepath.Join(h.dir, "dist")
	writeFile(t, filepath.Join(dist, "a.js"), "a")
	writeFile(t, filepath.Join(h.configDir, "production.yml"), "static_file_directory: "+dist+"\n")

	if err := h.run(nil, map[string]any{config.KeyEnv: "production"}); err != nil {
		t.Fatalf("Run: %v\n%s", err, h.out.String())
	}
	if got, want := h.store.keys(), []string{"a.js"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("uploaded %v, want %v", got, want)
	}
	if h.decryptor.calls != 0 {
		t.Fatalf("static deploy configured in %s decrypted secrets %d time(s)", "production.yml", h.decryptor.calls)
	}
	want := []notify.Phase{notify.PhaseUploading, notify.PhaseSuccess}
	if got := h.sink.phases(); !reflect.DeepEqual(got, want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
}

func TestRunStaticDirectoryFailureNamesStaticUpload(t *testing.T) {
	h := newHarness(t)
	missing := filepath.Join(h.dir, "no-such-dist")

	if err := h.run(nil, map[string]any{config.KeyEnv: "production", config.KeyStaticDir: missing}); err == nil {
		t.Fatalf("expected an error for a missing static directory")
	}
	last := h.sink.last()
	if last.Phase != notify.PhaseError || !strings.Contains(last.Text, string(StateStaticUpload)) {
		t.Fatalf("failure should name %q: %+v", StateStaticUpload, last)
	}
	if strings.Contains(last.Text, string(StateBuild)) {
		t.Errorf("static failure reported as a build failure: %q", last.Text)
	}
}

func TestRunUploadFailureReportsIdentity(t *testing.T) {
	h := newHarness(t)
	h.store.fail["app.js.map"] = true

	err := h.run([]string{h.entryArg()}, map[string]any{config.KeyEnv: "production"})
	if !errors.Is(err, publish.ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
	if got := h.store.keys(); !reflect.DeepEqual(got, []string{"app.js"}) {
		t.Fatalf("sibling upload should land, got %v", got)
	}

	last := h.sink.last()
	if last.Phase != notify.PhaseError {
		t.Fatalf("last phase = %s", last.Phase)
	}
	if last.Title != "site@1.4.0 → production" || !strings.Contains(last.Text, "access denied") {
		t.Errorf("error message lacks identity or cause: %+v", last)
	}
	var commit string
	for _, f := range last.Facts {
		if f.Name == "Commit" {
			commit = f.Value
		}
	}
	if commit != "0123456" {
		t.Errorf("commit fact = %q", commit)
	}
}

func TestRunLeakCheckBlocksPublish(t *testing.T) {
	h := newHarness(t)
	// A secret copied into public config ends up in the bundle.
	writeFile(t, filepath.Join(h.configDir, "production.yml"), "public:\n  token: tok-1234567\n")

	err := h.run([]string{h.entryArg()}, map[string]any{config.KeyEnv: "production", config.KeyLeakCheck: true})
	if !errors.Is(err, publish.ErrLeakDetected) {
		t.Fatalf("expected ErrLeakDetected, got %v", err)
	}
	if len(h.store.keys()) != 0 {
		t.Fatalf("nothing may be uploaded: %v", h.store.keys())
	}
}

func TestRunPublishesBadge(t *testing.T) {
	h := newHarness(t)

	if err := h.run([]string{h.entryArg()}, map[string]any{config.KeyEnv: "production", config.KeyBadge: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	svg, ok := h.store.objects["badges/production.svg"]
	if !ok {
		t.Fatalf("badge not published: %v", h.store.keys())
	}
	if !strings.Contains(string(svg), ">1.4.0</text>") {
		t.Errorf("badge does not show the version")
	}
	if strings.Contains(string(svg), "@font-face") {
		t.Errorf("font embedded without %s", config.KeyBadgeFont)
	}
}

func TestRunBadgeEmbedsFontFromConfig(t *testing.T) {
	h := newHarness(t)
	writeFile(t, filepath.Join(h.configDir, "production.yml"), "badge: true\nbadge_embed_font: true\n")

	if err := h.run([]string{h.entryArg()}, map[string]any{config.KeyEnv: "production"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if svg := h.store.objects["badges/production.svg"]; !strings.Contains(string(svg), "@font-face") {
		t.Fatalf("badge font not embedded: %d bytes", len(svg))
	}
}
