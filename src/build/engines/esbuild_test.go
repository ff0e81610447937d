package engines

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sofmeright/webfreight/src/build"
	"github.com/sofmeright/webfreight/src/entry"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestEsbuildRegistered(t *testing.T) {
	b, err := build.Get("esbuild")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b.Name() != "esbuild" {
		t.Fatalf("Name = %q", b.Name())
	}
}

func TestEsbuildBundleInjectsNamespace(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "greet.js", "export function greet(n) { return 'hello ' + n; }\n")
	src := writeSource(t, dir, "app.js", "import { greet } from './greet.js';\nif (process.env.NODE_ENV === 'staging') { console.log(greet(globalThis.__APP__.config.name)); }\n")

	b := &esbuildBundler{}
	out, err := b.Bundle(context.Background(), build.Request{
		Entry:     entry.Entry{Source: src, Output: "app.js"},
		Outfile:   filepath.Join(dir, "out", "app.js"),
		Env:       "staging",
		Namespace: "__APP__",
		Inject:    map[string]any{"config": map[string]any{"name": "web"}},
	})
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}

	code := string(out.Code)
	for _, want := range []string{`globalThis["__APP__"]=Object.freeze({"config":{"name":"web"}});`, "hello ", "sourceMappingURL=app.js.map"} {
		if !strings.Contains(code, want) {
			t.Errorf("bundle missing %q:\n%s", want, code)
		}
	}
	if strings.Contains(code, "process.env.NODE_ENV") {
		t.Errorf("NODE_ENV was not replaced:\n%s", code)
	}
	if len(out.SourceMap) == 0 || !strings.Contains(string(out.SourceMap), `"mappings"`) {
		t.Errorf("expected sourcemap, got %q", out.SourceMap)
	}
}

func TestEsbuildMinify(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "app.js", "function addNumbers(firstValue, secondValue) {\n  return firstValue + secondValue;\n}\nconsole.log(addNumbers(1, 2));\n")

	b := &esbuildBundler{}
	plain, err := b.Bundle(context.Background(), build.Request{Entry: entry.Entry{Source: src, Output: "app.js"}, Outfile: filepath.Join(dir, "app.out.js")})
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	minified, err := b.Bundle(context.Background(), build.Request{Entry: entry.Entry{Source: src, Output: "app.js"}, Outfile: filepath.Join(dir, "app.out.js"), Minify: true})
	if err != nil {
		t.Fatalf("Bundle minified: %v", err)
	}
	if len(minified.Code) >= len(plain.Code) {
		t.Fatalf("minified bundle (%d bytes) not smaller than plain (%d bytes)", len(minified.Code), len(plain.Code))
	}
	if strings.Contains(string(minified.Code), "firstValue") {
		t.Fatalf("identifiers were not minified:\n%s", minified.Code)
	}
}

func TestEsbuildSyntaxError(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "broken.js", "export const = ;\n")

	_, err := (&esbuildBundler{}).Bundle(context.Background(), build.Request{
		Entry:   entry.Entry{Source: src, Output: "broken.js"},
		Outfile: filepath.Join(dir, "out.js"),
	})
	if err == nil || !strings.Contains(err.Error(), "broken.js") {
		t.Fatalf("expected located syntax error, got %v", err)
	}
}
