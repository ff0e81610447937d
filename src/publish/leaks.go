package publish

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// ErrLeakDetected is returned when an artifact contains a secret.
var ErrLeakDetected = errors.New("secret detected in artifact")

// minSecretLen is the shortest configured secret value searched for
// verbatim; shorter values produce too many false positives.
const minSecretLen = 6

// Leak is a single secret found in an artifact.
type Leak struct {
	Key    string
	Line   int
	Rule   string
	Detail string
}

func (l Leak) String() string {
	if l.Line > 0 {
		return fmt.Sprintf("%s:%d %s (%s)", l.Key, l.Line, l.Detail, l.Rule)
	}
	return fmt.Sprintf("%s %s (%s)", l.Key, l.Detail, l.Rule)
}

// LeakError lists every leak found before publishing.
type LeakError struct {
	Leaks []Leak
}

func (e *LeakError) Error() string {
	parts := make([]string, len(e.Leaks))
	for i, l := range e.Leaks {
		parts[i] = l.String()
	}
	return fmt.Sprintf("%s: %s", ErrLeakDetected, strings.Join(parts, "; "))
}

func (e *LeakError) Unwrap() error { return ErrLeakDetected }

// LeakScanner checks artifacts for gitleaks rule matches and for verbatim
// copies of configured secret values that were not meant to be exposed.
type LeakScanner struct {
	mu       sync.Mutex
	detector *detect.Detector
	secrets  map[string]string // name → value
}

// NewLeakScanner loads the default gitleaks rules. secrets maps secret
// names to values that must never appear in a published artifact.
func NewLeakScanner(secrets map[string]string) (*LeakScanner, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	return &LeakScanner{detector: d, secrets: secrets}, nil
}

// Scan returns every leak in artifacts. Bodies must be loaded.
func (s *LeakScanner) Scan(artifacts []Artifact) []Leak {
	var leaks []Leak
	for _, a := range artifacts {
		leaks = append(leaks, s.scanSecrets(a)...)
		leaks = append(leaks, s.scanRules(a)...)
	}
	sort.SliceStable(leaks, func(i, j int) bool { return leaks[i].Key < leaks[j].Key })
	return leaks
}

func (s *LeakScanner) scanSecrets(a Artifact) []Leak {
	names := make([]string, 0, len(s.secrets))
	for name := range s.secrets {
		names = append(names, name)
	}
	sort.Strings(names)

	var leaks []Leak
	body := string(a.Body)
	for _, name := range names {
		value := s.secrets[name]
		if len(value) < minSecretLen {
			continue
		}
		if strings.Contains(body, value) {
			leaks = append(leaks, Leak{Key: a.Key, Rule: "configured-secret", Detail: "value of secret " + name})
		}
	}
	return leaks
}

func (s *LeakScanner) scanRules(a Artifact) []Leak {
	if s.detector == nil {
		return nil
	}
	// The detector keeps per-scan state and is not safe for concurrent use.
	s.mu.Lock()
	findings := s.detector.DetectBytes(a.Body)
	s.mu.Unlock()

	leaks := make([]Leak, 0, len(findings))
	for _, f := range findings {
		leaks = append(leaks, Leak{
			Key:    a.Key,
			Line:   f.StartLine + 1, // gitleaks is 0-indexed
			Rule:   f.RuleID,
			Detail: f.Description,
		})
	}
	return leaks
}

// FlattenSecrets turns a nested secrets map into dotted name → string value
// pairs, skipping the names in exposed.
func FlattenSecrets(secrets map[string]any, exposed []string) map[string]string {
	skip := make(map[string]bool, len(exposed))
	for _, k := range exposed {
		skip[k] = true
	}
	out := map[string]string{}
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		if skip[prefix] {
			return
		}
		switch t := v.(type) {
		case map[string]any:
			for k, child := range t {
				walk(joinKey(prefix, k), child)
			}
		case map[any]any:
			for k, child := range t {
				walk(joinKey(prefix, fmt.Sprint(k)), child)
			}
		case nil:
		default:
			out[prefix] = fmt.Sprint(t)
		}
	}
	for k, v := range secrets {
		walk(k, v)
	}
	return out
}

func joinKey(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + "." + k
}
