package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/sofmeright/webfreight/src/build"
)

func init() {
	build.Register("esbuild", func() build.Bundler { return &esbuildBundler{} })
}

// esbuildBundler bundles browser scripts in-process with esbuild.
type esbuildBundler struct{}

func (b *esbuildBundler) Name() string { return "esbuild" }

func (b *esbuildBundler) Bundle(ctx context.Context, req build.Request) (*build.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	banner, err := namespaceBanner(req.Namespace, req.Inject)
	if err != nil {
		return nil, err
	}
	nodeEnv, err := json.Marshal(req.Env)
	if err != nil {
		return nil, err
	}

	res := api.Build(api.BuildOptions{
		EntryPoints:       []string{req.Entry.Source},
		Bundle:            true,
		Write:             false,
		Outfile:           req.Outfile,
		Sourcemap:         api.SourceMapLinked,
		Platform:          api.PlatformBrowser,
		Format:            api.FormatIIFE,
		MinifyWhitespace:  req.Minify,
		MinifyIdentifiers: req.Minify,
		MinifySyntax:      req.Minify,
		Define:            map[string]string{"process.env.NODE_ENV": string(nodeEnv)},
		Banner:            map[string]string{"js": banner},
		LogLevel:          api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("%s", formatMessages(res.Errors))
	}

	out := &build.Bundle{}
	for _, f := range res.OutputFiles {
		if strings.HasSuffix(f.Path, ".map") {
			out.SourceMap = f.Contents
		} else {
			out.Code = f.Contents
		}
	}
	if out.Code == nil {
		return nil, fmt.Errorf("esbuild produced no output for %s", req.Entry.Source)
	}
	return out, nil
}

// namespaceBanner assigns the injected values to a frozen global so the
// bundle can read its deploy configuration at runtime.
func namespaceBanner(namespace string, values map[string]any) (string, error) {
	if namespace == "" {
		return "", nil
	}
	if values == nil {
		values = map[string]any{}
	}
	key, err := json.Marshal(namespace)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding injected config: %w", err)
	}
	return fmt.Sprintf("globalThis[%s]=Object.freeze(%s);", key, body), nil
}

func formatMessages(msgs []api.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
		} else {
			lines = append(lines, m.Text)
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "; ")
}
