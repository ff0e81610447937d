// Package badge renders shields.io-style SVG badges for deployments, with
// text widths measured from real font metrics.
package badge

import (
	"fmt"
	"path"
	"strings"
)

// DefaultSize is the point size badges are measured at.
const DefaultSize = 11

// Engine renders badges with one font.
type Engine struct {
	metrics *FontMetrics
	// EmbedFont inlines the font as a base64 @font-face so the badge renders
	// identically where the font is not installed.
	EmbedFont bool
}

// New creates a badge engine with the given font metrics.
func New(metrics *FontMetrics) *Engine {
	return &Engine{metrics: metrics}
}

// NewDefault creates an engine using the built-in Go Regular font.
func NewDefault() (*Engine, error) {
	m, err := LoadBuiltinFont(DefaultSize)
	if err != nil {
		return nil, err
	}
	return New(m), nil
}

// Badge defines the content and appearance of a single badge.
type Badge struct {
	Label string // left side text
	Value string // right side text
	Color string // hex color for right side (e.g. "#4c1")
}

// Generate produces a shields.io-compatible SVG badge string.
func (e *Engine) Generate(b Badge) string {
	return e.renderSVG(b)
}

// Deploy returns the badge for a deployment of version to env.
func Deploy(env, version, status string) Badge {
	value := version
	if value == "" {
		value = "unknown"
	}
	label := "deploy"
	if env != "" {
		label = "deploy " + env
	}
	return Badge{Label: label, Value: value, Color: StatusColor(status)}
}

// Key returns the object key a deployment badge for env is published under.
func Key(env string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '-'
		}
		return r
	}, env)
	if name == "" {
		name = "default"
	}
	return path.Join("badges", fmt.Sprintf("%s.svg", name))
}

// StatusColor maps a status keyword to a badge hex color.
func StatusColor(status string) string {
	switch status {
	case "success", "deployed":
		return "#4c1"
	case "prerelease", "staging":
		return "#dfb317"
	case "failed", "error":
		return "#e05d44"
	default:
		return "#9f9f9f"
	}
}
