package config

import (
	"fmt"
	"sort"
)

// Config keys understood by the deploy pipeline.
const (
	KeyEnv           = "env"
	KeyMinify        = "minify"
	KeyCloudFront    = "cloudfront"
	KeyBucket        = "s3bucket"
	KeyPrefix        = "s3prefix"
	KeyRegion        = "region"
	KeyOutDir        = "outdir"
	KeyStaticDir     = "static_file_directory"
	KeyEntries       = "entries"
	KeyNamespace     = "namespace"
	KeyPublic        = "public"
	KeyExposeSecrets = "expose_secrets"
	KeyConcurrency   = "concurrency"
	KeyUploadRPS     = "upload_rps"
	KeyLeakCheck     = "leak_check"
	KeyBadge         = "badge"
	KeyBadgeFont     = "badge_embed_font"
	KeySlackWebhook  = "slack.webhook"
	KeySlackChannel  = "slack.channel"
	KeyTeamsWebhook  = "teams.webhook"
)

// Resolved is the configuration snapshot for a single run. It is built once
// by Resolve and treated as read-only afterwards; maps and slices must not
// be modified by consumers.
type Resolved struct {
	Env           string
	Minify        bool
	CloudFrontID  string
	Bucket        string
	Prefix        string
	Region        string
	OutDir        string
	StaticDir     string
	Entries       []string
	Namespace     string
	Public        map[string]any
	ExposeSecrets []string
	Secrets       map[string]any
	Concurrency   int
	UploadRPS     float64
	LeakCheck     bool
	Badge         bool
	// BadgeEmbedFont inlines the badge font so widths match on every viewer.
	BadgeEmbedFont bool
	Slack          SlackSettings
	TeamsWebhook   string
}

// SlackSettings configures the simple-message notification sink.
type SlackSettings struct {
	Webhook string
	Channel string
}

// StaticOnly reports whether the run publishes a pre-built directory.
func (c Resolved) StaticOnly() bool { return c.StaticDir != "" }

// ExposedSecrets returns a copy of the secrets listed in ExposeSecrets.
// Keys missing from the secrets file are skipped.
func (c Resolved) ExposedSecrets() map[string]any {
	out := make(map[string]any, len(c.ExposeSecrets))
	for _, k := range c.ExposeSecrets {
		if v, ok := lookupPath(c.Secrets, k); ok {
			out[k] = v
		}
	}
	return out
}

// SecretKeys returns the sorted top-level secret names (never values).
func (c Resolved) SecretKeys() []string {
	keys := make([]string, 0, len(c.Secrets))
	for k := range c.Secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultsLayer holds the built-in defaults, the last layer of every resolver.
func DefaultsLayer() *MapLayer {
	return NewMapLayer("built-in", map[string]any{
		KeyEnv:         "development",
		KeyMinify:      false,
		KeyRegion:      "us-east-1",
		KeyOutDir:      "build",
		KeyNamespace:   "__WEBFREIGHT__",
		KeyConcurrency: 4,
		KeyUploadRPS:   0,
		KeyLeakCheck:   false,
		KeyBadge:       false,
		KeyBadgeFont:   false,
	})
}

// LoadResolver assembles the full layer stack for a run:
// flags > environment > <dir>/<env> file > <dir>/default file > built-in.
// The environment name itself is resolved from flags, environment and
// built-in defaults before the files are read.
func LoadResolver(dir string, flags, environ Layer) (*Resolver, error) {
	builtin := DefaultsLayer()
	env := NewResolver(flags, environ, builtin).String(KeyEnv, "development")

	files, err := LoadDirLayers(dir, env)
	if err != nil {
		return nil, err
	}

	layers := []Layer{flags, environ}
	layers = append(layers, files...)
	layers = append(layers, builtin)
	return NewResolver(layers...), nil
}

// Resolve reads every pipeline setting from r and validates the result.
func Resolve(r *Resolver, secrets map[string]any) (Resolved, error) {
	var err error
	c := Resolved{
		Env:           r.String(KeyEnv, ""),
		CloudFrontID:  r.String(KeyCloudFront, ""),
		Bucket:        r.String(KeyBucket, ""),
		Prefix:        r.String(KeyPrefix, ""),
		Region:        r.String(KeyRegion, ""),
		OutDir:        r.String(KeyOutDir, "build"),
		StaticDir:     r.String(KeyStaticDir, ""),
		Entries:       r.Strings(KeyEntries),
		Namespace:     r.String(KeyNamespace, ""),
		Public:        r.Map(KeyPublic),
		ExposeSecrets: r.Strings(KeyExposeSecrets),
		Secrets:       secrets,
		Slack: SlackSettings{
			Webhook: r.String(KeySlackWebhook, ""),
			Channel: r.String(KeySlackChannel, ""),
		},
		TeamsWebhook: r.String(KeyTeamsWebhook, ""),
	}
	if c.Public == nil {
		c.Public = map[string]any{}
	}
	if c.Secrets == nil {
		c.Secrets = map[string]any{}
	}

	if c.Minify, err = r.Bool(KeyMinify, false); err != nil {
		return Resolved{}, err
	}
	if c.LeakCheck, err = r.Bool(KeyLeakCheck, false); err != nil {
		return Resolved{}, err
	}
	if c.Badge, err = r.Bool(KeyBadge, false); err != nil {
		return Resolved{}, err
	}
	if c.BadgeEmbedFont, err = r.Bool(KeyBadgeFont, false); err != nil {
		return Resolved{}, err
	}
	if c.Concurrency, err = r.Int(KeyConcurrency, 4); err != nil {
		return Resolved{}, err
	}
	if c.UploadRPS, err = r.Float(KeyUploadRPS, 0); err != nil {
		return Resolved{}, err
	}

	if c.Env == "" {
		return Resolved{}, fmt.Errorf("env: must not be empty")
	}
	if c.Concurrency < 1 {
		return Resolved{}, fmt.Errorf("concurrency: must be >= 1, got %d", c.Concurrency)
	}
	if c.UploadRPS < 0 {
		return Resolved{}, fmt.Errorf("upload_rps: must be >= 0, got %g", c.UploadRPS)
	}
	if c.Namespace == "" {
		return Resolved{}, fmt.Errorf("namespace: must not be empty")
	}
	return c, nil
}
