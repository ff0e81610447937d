// Package entry turns raw entry declarations into validated build inputs.
//
// A declaration is either a bare source path ("src/app.js", published as
// "app.js") or an explicit "source:destination" pair.
package entry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrEntryNotFound is returned when a declared source does not exist.
var ErrEntryNotFound = errors.New("entry source not found")

// Entry is one thing to build and publish.
type Entry struct {
	Source string
	Output string
}

func (e Entry) String() string { return e.Source + ":" + e.Output }

// Parse converts raw declarations into entries, preserving order.
// Duplicate outputs are kept; the build keeps only the last of them.
func Parse(raw []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(raw))
	for _, decl := range raw {
		e, err := parseOne(decl)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseOne(decl string) (Entry, error) {
	decl = strings.TrimSpace(decl)
	if decl == "" {
		return Entry{}, fmt.Errorf("empty entry declaration")
	}

	src, dest := decl, ""
	if idx := strings.LastIndex(decl, ":"); idx != -1 && !isDriveLetter(decl, idx) {
		src, dest = strings.TrimSpace(decl[:idx]), strings.TrimSpace(decl[idx+1:])
		if dest == "" {
			return Entry{}, fmt.Errorf("entry %q: empty destination", decl)
		}
	} else {
		dest = filepath.Base(src)
	}
	if src == "" {
		return Entry{}, fmt.Errorf("entry %q: empty source", decl)
	}
	dest = strings.TrimPrefix(filepath.ToSlash(dest), "/")
	if dest == "" {
		return Entry{}, fmt.Errorf("entry %q: empty destination", decl)
	}
	dest = path.Clean(dest)
	if dest == "." {
		return Entry{}, fmt.Errorf("entry %q: empty destination", decl)
	}
	if dest == ".." || strings.HasPrefix(dest, "../") {
		return Entry{}, fmt.Errorf("entry %q: destination escapes the output directory", decl)
	}
	return Entry{Source: src, Output: dest}, nil
}

// isDriveLetter reports whether the colon at idx belongs to a Windows
// drive prefix such as "C:\".
func isDriveLetter(s string, idx int) bool {
	return idx == 1 && len(s) > 2 && (s[2] == '\\' || s[2] == '/')
}

// Validate stats every source concurrently. All missing sources are
// reported together in a single error wrapping ErrEntryNotFound.
func Validate(ctx context.Context, entries []Entry) error {
	problems := make([]string, len(entries))

	g, _ := errgroup.WithContext(ctx)
	for i, e := range entries {
		g.Go(func() error {
			info, err := os.Stat(e.Source)
			switch {
			case err != nil:
				problems[i] = e.Source
			case info.IsDir():
				problems[i] = e.Source + " (is a directory)"
			}
			return nil
		})
	}
	_ = g.Wait()

	var missing []string
	for _, p := range problems {
		if p != "" {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, strings.Join(missing, ", "))
	}
	return nil
}

// Resolve parses and validates positional arguments followed by configured
// declarations.
func Resolve(ctx context.Context, args, configured []string) ([]Entry, error) {
	raw := make([]string, 0, len(args)+len(configured))
	raw = append(raw, args...)
	raw = append(raw, configured...)

	entries, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}
