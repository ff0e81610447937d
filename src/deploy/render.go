package deploy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sofmeright/webfreight/src/build"
	"github.com/sofmeright/webfreight/src/config"
	"github.com/sofmeright/webfreight/src/guard"
	"github.com/sofmeright/webfreight/src/output"
	"github.com/sofmeright/webfreight/src/publish"
)

func (rn *run) renderIdentity() {
	id := rn.dc.Identity
	kv := []output.KV{
		{Key: "package", Value: orDash(id.Label())},
		{Key: "commit", Value: orDash(id.ShortCommit())},
		{Key: "actor", Value: orDash(id.Actor)},
		{Key: "repo", Value: orDash(id.RepoURL)},
	}
	output.ContextBlock(rn.out, append(kv, output.CIContext()...))
}

func (rn *run) renderGuard(res *guard.Result, err error, elapsed time.Duration) {
	sec := output.NewSection(rn.out, "Config repository", elapsed, rn.Color)
	defer sec.Close()

	if res != nil && res.Status != nil {
		st := res.Status
		sec.Row("%-12s%s", "path", rn.opts.ConfigDir)
		sec.Row("%-12s%s", "remote", orDash(st.RemoteURL))
		if st.LocalCommit != "" {
			sec.Row("%-12s%s", "commit", shortHash(st.LocalCommit))
		}
	}

	var stale *guard.StaleError
	switch {
	case errors.As(err, &stale):
		output.RowStatus(sec, "up to date", "", "failed", rn.Color)
		sec.Separator()
		output.RowErrors(sec, stale.Errors, rn.Color)
	case err != nil:
		output.RowStatus(sec, "check", err.Error(), "failed", rn.Color)
	case res != nil && res.Status != nil && !res.Status.UpToDate:
		output.RowStatus(sec, "up to date", "unverified, secrets not decrypted", "warning", rn.Color)
		output.RowErrors(sec, res.Status.Errors, rn.Color)
	default:
		output.RowStatus(sec, "up to date", "", "success", rn.Color)
		if res != nil && res.Decrypted != "" {
			output.RowStatus(sec, "secrets", res.Decrypted, "success", rn.Color)
		}
	}
}

func (rn *run) renderConfig(r *config.Resolver, cfg config.Resolved) {
	sec := output.NewSection(rn.out, "Config", 0, rn.Color)
	defer sec.Close()

	row := func(label, key, value string) {
		src := ""
		if key != "" {
			if _, layer, ok := r.Source(key); ok {
				src = output.Dimmed("("+layer+")", rn.Color)
			}
		}
		sec.Row("%-12s%-36s %s", label, orDash(value), src)
	}
	row("env", config.KeyEnv, cfg.Env)
	if cfg.StaticOnly() {
		row("static dir", config.KeyStaticDir, cfg.StaticDir)
	} else {
		row("outdir", config.KeyOutDir, cfg.OutDir)
		row("minify", config.KeyMinify, fmt.Sprint(cfg.Minify))
	}
	row("bucket", config.KeyBucket, cfg.Bucket)
	if cfg.Prefix != "" {
		row("prefix", config.KeyPrefix, cfg.Prefix)
	}
	row("cloudfront", config.KeyCloudFront, cfg.CloudFrontID)
	if keys := cfg.SecretKeys(); len(keys) > 0 {
		row("secrets", "", strings.Join(keys, ", "))
	}
	sec.Row("%-12s%s", "layers", strings.Join(r.Layers(), " > "))
}

func (rn *run) renderBuild(results []build.Result, elapsed time.Duration) {
	sec := output.NewSection(rn.out, "Build", elapsed, rn.Color)
	defer sec.Close()

	var rows []output.ArtifactRow
	for _, r := range results {
		rows = append(rows,
			output.ArtifactRow{Key: r.Bundle.Key, Size: int64(r.Bundle.Size), Status: "success", Detail: formatDuration(r.Duration)},
			output.ArtifactRow{Key: r.SourceMap.Key, Size: int64(r.SourceMap.Size), Status: "success"},
		)
	}
	output.SectionArtifacts(sec, rows, rn.Color)
}

func (rn *run) renderUpload(p *publish.Pipeline, artifacts []publish.Artifact, report *publish.Report, err error, elapsed time.Duration) {
	sec := output.NewSection(rn.out, "Upload", elapsed, rn.Color)
	defer sec.Close()

	var leak *publish.LeakError
	if errors.As(err, &leak) {
		for _, l := range leak.Leaks {
			output.RowStatus(sec, l.Key, l.Detail, "failed", rn.Color)
		}
		return
	}
	if report == nil {
		if err != nil {
			output.RowStatus(sec, "upload", err.Error(), "failed", rn.Color)
		}
		return
	}

	var perr *publish.PublishError
	errors.As(err, &perr)

	uploaded := map[string]publish.Upload{}
	for _, u := range report.Uploaded {
		uploaded[u.Key] = u
	}
	rows := make([]output.ArtifactRow, 0, len(artifacts))
	for _, a := range artifacts {
		key := p.FullKey(a.Key)
		if u, ok := uploaded[key]; ok {
			rows = append(rows, output.ArtifactRow{Key: key, Size: int64(u.Size), Status: "success"})
			continue
		}
		row := output.ArtifactRow{Key: key, Status: "failed"}
		if perr != nil && perr.Failed[key] != nil {
			row.Detail = perr.Failed[key].Error()
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	output.SectionArtifacts(sec, rows, rn.Color)

	if p.DistributionID != "" {
		sec.Separator()
		switch {
		case perr != nil && perr.Invalidate != nil:
			output.RowStatus(sec, "invalidation", perr.Invalidate.Error(), "failed", rn.Color)
		case len(report.Invalidated) > 0:
			output.RowStatus(sec, "invalidation", fmt.Sprintf("%s, %d paths", p.DistributionID, len(report.Invalidated)), "success", rn.Color)
		default:
			output.RowStatus(sec, "invalidation", "nothing uploaded", "skipped", rn.Color)
		}
	}
}

func (rn *run) renderSummary(elapsed time.Duration, status string) {
	sec := output.NewSection(rn.out, "Summary", 0, rn.Color)
	for _, st := range rn.steps {
		output.SummaryRow(rn.out, st.name, st.status, st.detail, rn.Color)
	}
	sec.Separator()
	output.SummaryTotal(rn.out, elapsed, status, rn.Color)
	sec.Close()
}

func (rn *run) renderFailure(name string, err error, elapsed time.Duration) {
	sec := output.NewSection(rn.out, name, elapsed, rn.Color)
	output.RowStatus(sec, strings.ToLower(name), err.Error(), "failed", rn.Color)
	sec.Close()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
