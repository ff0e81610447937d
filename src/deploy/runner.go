// Package deploy runs one deployment end to end:
//
//	START → GUARD → RESOLVE → (STATIC_UPLOAD | BUILD → UPLOAD) → SUCCESS | ERROR
//
// Every fatal error moves the run straight to ERROR. Both terminal states
// send a final notification carrying the deploy identity.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sofmeright/webfreight/src/badge"
	"github.com/sofmeright/webfreight/src/build"
	"github.com/sofmeright/webfreight/src/config"
	"github.com/sofmeright/webfreight/src/entry"
	"github.com/sofmeright/webfreight/src/gitver"
	"github.com/sofmeright/webfreight/src/guard"
	"github.com/sofmeright/webfreight/src/logging"
	"github.com/sofmeright/webfreight/src/notify"
	"github.com/sofmeright/webfreight/src/publish"
)

// State names a step of the run.
type State string

const (
	StateGuard        State = "guard"
	StateResolve      State = "resolve"
	StateBuild        State = "build"
	StateUpload       State = "upload"
	StateStaticUpload State = "static-upload"
	StateSuccess      State = "success"
	StateError        State = "error"
)

// StoreFactory returns the object store and CDN invalidator for a run.
// The invalidator may be nil.
type StoreFactory func(ctx context.Context, cfg config.Resolved, id gitver.Identity) (publish.ObjectStore, publish.Invalidator, error)

// Runner holds the collaborators of a deployment.
type Runner struct {
	Guard   *guard.Guard
	Bundler build.Bundler
	Stores  StoreFactory
	// Notifier, when nil, is built from Options.Notify and rebuilt once the
	// configuration adds webhooks.
	Notifier *notify.Notifier
	Logger   *zap.Logger
	Out      io.Writer
	Color    bool
}

// Options are the inputs of one run.
type Options struct {
	ConfigDir string
	// Args are positional entry declarations; they precede configured entries.
	Args     []string
	Flags    config.Layer
	Environ  config.Layer
	Identity gitver.Identity
	Notify   notify.Settings
}

// run is the state of a single Run call.
type run struct {
	*Runner
	opts     Options
	log      *zap.Logger
	out      io.Writer
	dc       config.DeployContext
	notifier *notify.Notifier
	state    State
	steps    []step
}

// step is one row of the closing summary.
type step struct {
	name, status, detail string
}

func (rn *run) record(name, status, detail string) {
	rn.steps = append(rn.steps, step{name: name, status: status, detail: detail})
}

// Run performs the deployment and returns the fatal error, if any.
func (r *Runner) Run(ctx context.Context, opts Options) (err error) {
	start := time.Now()
	rn := &run{
		Runner: r,
		opts:   opts,
		log:    logging.OrNop(r.Logger),
		out:    r.Out,
		dc:     config.NewDeployContext(opts.Identity),
	}
	if rn.out == nil {
		rn.out = io.Discard
	}
	rn.notifier = r.Notifier
	if rn.notifier == nil {
		rn.notifier = notify.New(opts.Notify, r.Logger)
	}

	defer func() {
		status := "success"
		if err != nil {
			status = "failed"
			failed := rn.state
			rn.state = StateError
			rn.record(string(failed), "failed", err.Error())
			rn.log.Error("deploy failed", zap.String("state", string(failed)), zap.Error(err))
			rn.notifier.Notify(ctx, rn.dc, notify.Event{Phase: notify.PhaseError, Detail: string(failed), Err: err})
		} else {
			rn.state = StateSuccess
			rn.notifier.Notify(ctx, rn.dc, notify.Event{Phase: notify.PhaseSuccess})
		}
		rn.renderSummary(time.Since(start), status)
	}()

	rn.renderIdentity()

	if err := rn.guard(ctx); err != nil {
		return err
	}
	cfg, err := rn.resolve()
	if err != nil {
		return err
	}

	var artifacts []publish.Artifact
	if cfg.StaticOnly() {
		artifacts, err = rn.discover(ctx, cfg)
	} else {
		artifacts, err = rn.build(ctx, cfg)
	}
	if err != nil {
		return err
	}
	if cfg.Badge {
		artifacts = append(artifacts, rn.badge(cfg)...)
	}

	return rn.upload(ctx, cfg, artifacts)
}

func (rn *run) guard(ctx context.Context) error {
	rn.state = StateGuard
	start := time.Now()

	staticOnly := rn.staticOnly()

	if rn.Guard == nil {
		return errors.New("no configuration guard configured")
	}
	g := *rn.Guard
	g.Logger = rn.Logger
	g.BeforeDecrypt = func(ctx context.Context) {
		rn.notifier.Notify(ctx, rn.dc, notify.Event{Phase: notify.PhaseDecrypting})
	}
	res, err := g.Check(ctx, rn.opts.ConfigDir, staticOnly)
	if res != nil {
		rn.dc = rn.dc.WithConfigRepo(res.Status)
	}
	rn.renderGuard(res, err, time.Since(start))
	if err == nil {
		detail := "up to date"
		if res != nil && res.Status != nil && !res.Status.UpToDate {
			detail = "unverified"
		}
		rn.record(string(StateGuard), "success", detail)
	}
	return err
}

// staticOnly reports whether any plain configuration layer names a static
// directory. Secrets are not loaded yet; a broken config file is left for
// resolve to report.
func (rn *run) staticOnly() bool {
	resolver, err := config.LoadResolver(rn.opts.ConfigDir, rn.opts.Flags, rn.opts.Environ)
	if err != nil {
		resolver = config.NewResolver(rn.opts.Flags, rn.opts.Environ)
	}
	return resolver.String(config.KeyStaticDir, "") != ""
}

func (rn *run) resolve() (config.Resolved, error) {
	rn.state = StateResolve

	resolver, err := config.LoadResolver(rn.opts.ConfigDir, rn.opts.Flags, rn.opts.Environ)
	if err != nil {
		return config.Resolved{}, fmt.Errorf("loading configuration: %w", err)
	}

	secrets, err := config.LoadSecrets(config.PlaintextPath(filepath.Join(rn.opts.ConfigDir, rn.secretsFile())))
	if err != nil {
		return config.Resolved{}, err
	}

	cfg, err := config.Resolve(resolver, secrets)
	if err != nil {
		return config.Resolved{}, fmt.Errorf("resolving configuration: %w", err)
	}
	rn.dc = rn.dc.WithConfig(cfg)
	if rn.Notifier == nil {
		rn.notifier = notify.New(rn.opts.Notify.Merge(cfg), rn.Logger)
	}
	rn.renderConfig(resolver, cfg)
	rn.record(string(StateResolve), "success", cfg.Env)
	return cfg, nil
}

func (rn *run) secretsFile() string {
	if rn.Guard != nil && rn.Guard.SecretsFile != "" {
		return rn.Guard.SecretsFile
	}
	return guard.DefaultSecretsFile
}

func (rn *run) discover(ctx context.Context, cfg config.Resolved) ([]publish.Artifact, error) {
	rn.state = StateStaticUpload
	start := time.Now()
	artifacts, err := publish.Discover(ctx, cfg.StaticDir)
	if err != nil {
		rn.renderFailure("Static files", err, time.Since(start))
		return nil, err
	}
	rn.log.Info("static deploy", zap.String("dir", cfg.StaticDir), zap.Int("files", len(artifacts)))
	rn.record(string(StateBuild), "skipped", fmt.Sprintf("static, %d files", len(artifacts)))
	return artifacts, nil
}

func (rn *run) build(ctx context.Context, cfg config.Resolved) ([]publish.Artifact, error) {
	rn.state = StateBuild
	start := time.Now()

	entries, err := entry.Resolve(ctx, rn.opts.Args, cfg.Entries)
	if err != nil {
		rn.renderFailure("Build", err, time.Since(start))
		return nil, err
	}
	if len(entries) == 0 {
		err := fmt.Errorf("%w: no entries given and none configured under %q", entry.ErrEntryNotFound, config.KeyEntries)
		rn.renderFailure("Build", err, time.Since(start))
		return nil, err
	}
	if rn.Bundler == nil {
		return nil, errors.New("no bundler configured")
	}

	rn.notifier.Notify(ctx, rn.dc, notify.Event{
		Phase:  notify.PhaseBuilding,
		Detail: fmt.Sprintf("%d entries", len(entries)),
	})

	orch := &build.Orchestrator{Bundler: rn.Bundler, Logger: rn.Logger}
	results, err := orch.Build(ctx, entries, build.Options{
		OutDir:      cfg.OutDir,
		Minify:      cfg.Minify,
		Env:         cfg.Env,
		Namespace:   cfg.Namespace,
		Inject:      rn.inject(cfg),
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		rn.renderFailure("Build", err, time.Since(start))
		return nil, err
	}
	rn.renderBuild(results, time.Since(start))
	rn.record(string(StateBuild), "success", fmt.Sprintf("%d entries", len(results)))
	return publish.FromBuild(results), nil
}

// inject is the runtime namespace object every bundle receives.
func (rn *run) inject(cfg config.Resolved) map[string]any {
	id := rn.dc.Identity
	return map[string]any{
		"env":     cfg.Env,
		"version": id.PackageVersion,
		"commit":  id.Commit,
		"config":  cfg.Public,
		"secrets": cfg.ExposedSecrets(),
	}
}

// badge renders the deploy badge; failures only cost the badge.
func (rn *run) badge(cfg config.Resolved) []publish.Artifact {
	engine, err := badge.NewDefault()
	if err != nil {
		rn.log.Warn("deploy badge skipped", zap.Error(err))
		return nil
	}
	id := rn.dc.Identity
	status := "deployed"
	if id.Prerelease {
		status = "prerelease"
	}
	version := id.PackageVersion
	if version == "" {
		version = id.ShortCommit()
	}
	engine.EmbedFont = cfg.BadgeEmbedFont
	svg := engine.Generate(badge.Deploy(cfg.Env, version, status))
	return []publish.Artifact{{Key: badge.Key(cfg.Env), Body: []byte(svg)}}
}

func (rn *run) upload(ctx context.Context, cfg config.Resolved, artifacts []publish.Artifact) error {
	rn.state = StateUpload
	if cfg.StaticOnly() {
		rn.state = StateStaticUpload
	}
	start := time.Now()

	detail := fmt.Sprintf("%d files", len(artifacts))
	if cfg.StaticOnly() {
		detail += " from " + cfg.StaticDir
	}
	rn.notifier.Notify(ctx, rn.dc, notify.Event{Phase: notify.PhaseUploading, Detail: detail})

	if rn.Stores == nil {
		return errors.New("no object store configured")
	}
	store, inv, err := rn.Stores(ctx, cfg, rn.dc.Identity)
	if err != nil {
		rn.renderFailure("Upload", err, time.Since(start))
		return fmt.Errorf("%w: %v", publish.ErrPublish, err)
	}

	p := &publish.Pipeline{
		Store:          store,
		Invalidator:    inv,
		DistributionID: cfg.CloudFrontID,
		Prefix:         cfg.Prefix,
		Limiter:        publish.NewLimiter(cfg.UploadRPS),
		Logger:         rn.Logger,
	}
	if cfg.LeakCheck {
		scanner, err := publish.NewLeakScanner(publish.FlattenSecrets(cfg.Secrets, cfg.ExposeSecrets))
		if err != nil {
			return err
		}
		p.Scanner = scanner
	}

	report, err := p.Publish(ctx, artifacts)
	rn.renderUpload(p, artifacts, report, err, time.Since(start))
	if err == nil {
		rn.record(string(rn.state), "success", fmt.Sprintf("%d files", len(report.Uploaded)))
	}
	return err
}
