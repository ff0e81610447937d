package entry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []Entry
	}{
		{
			name: "bare path uses base name",
			in:   []string{"src/app.js"},
			want: []Entry{{Source: "src/app.js", Output: "app.js"}},
		},
		{
			name: "explicit pair",
			in:   []string{"src/app.js:bundle/main.js"},
			want: []Entry{{Source: "src/app.js", Output: "bundle/main.js"}},
		},
		{
			name: "order and duplicates preserved",
			in:   []string{"b.js:out.js", "a.js", "c.js:out.js"},
			want: []Entry{
				{Source: "b.js", Output: "out.js"},
				{Source: "a.js", Output: "a.js"},
				{Source: "c.js", Output: "out.js"},
			},
		},
		{
			name: "destination is cleaned",
			in:   []string{"src/app.js:/js/./vendor/../app.js"},
			want: []Entry{{Source: "src/app.js", Output: "js/app.js"}},
		},
		{
			name: "drive letter is not a separator",
			in:   []string{`C:\site\app.js`},
			want: []Entry{{Source: `C:\site\app.js`, Output: filepath.Base(`C:\site\app.js`)}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Parse = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseIdempotent(t *testing.T) {
	raw := []string{"src/app.js", "src/admin.js:admin/app.js", "worker.js:w.js"}
	first, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	second, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("parsing is not idempotent: %v vs %v", first, second)
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "src/app.js:", ":app.js", "   ", "app.js:../../x.js", "app.js:js/../../x.js", "app.js:..", "app.js:js/.."} {
		if _, err := Parse([]string{in}); err == nil {
			t.Errorf("Parse(%q) expected error", in)
		}
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "app.js")
	if err := os.WriteFile(present, []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := Validate(context.Background(), []Entry{{Source: present, Output: "app.js"}}); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	missingA := filepath.Join(dir, "a.js")
	missingB := filepath.Join(dir, "b.js")
	err := Validate(context.Background(), []Entry{
		{Source: missingA, Output: "a.js"},
		{Source: present, Output: "app.js"},
		{Source: missingB, Output: "b.js"},
		{Source: dir, Output: "dir.js"},
	})
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	for _, want := range []string{missingA, missingB, "is a directory"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestResolveOrdersArgsBeforeConfig(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"cli.js", "cfg.js"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got, err := Resolve(context.Background(), []string{filepath.Join(dir, "cli.js")}, []string{filepath.Join(dir, "cfg.js") + ":config.js"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 2 || got[0].Output != "cli.js" || got[1].Output != "config.js" {
		t.Fatalf("Resolve = %v", got)
	}
}
