package output

import (
	"os"
	"strings"
)

// CI environment detection.

func IsCI() bool {
	return os.Getenv("CI") == "true"
}

// CIContext returns the pipeline context of the current CI job as
// key-value pairs for ContextBlock. Empty outside CI.
func CIContext() []KV {
	if !IsCI() {
		return nil
	}
	var kv []KV
	add := func(key string, envs ...string) {
		for _, e := range envs {
			if v := strings.TrimSpace(os.Getenv(e)); v != "" {
				kv = append(kv, KV{Key: key, Value: v})
				return
			}
		}
	}
	add("pipeline", "CI_PIPELINE_ID", "GITHUB_RUN_ID")
	add("job", "CI_JOB_NAME", "GITHUB_JOB")
	add("runner", "CI_RUNNER_DESCRIPTION", "RUNNER_NAME")
	add("ref", "CI_COMMIT_REF_NAME", "GITHUB_REF_NAME")
	return kv
}
