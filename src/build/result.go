package build

import "time"

// Result captures the outcome of building one entry.
type Result struct {
	Entry     string // "source:output"
	Bundle    Output
	SourceMap Output
	Duration  time.Duration
}

// Output is a file written by the orchestrator.
type Output struct {
	Key  string // destination key in the object store
	Path string // local path under the output directory
	Size int
}
