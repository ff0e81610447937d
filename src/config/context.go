package config

import "github.com/sofmeright/webfreight/src/gitver"

// DeployContext is the run state shared by every component. It is a value
// type: phases derive a new context with the With* methods instead of
// mutating a shared one, so concurrent readers never observe a change.
type DeployContext struct {
	Identity   gitver.Identity
	ConfigRepo *gitver.RepoStatus
	Config     Resolved
	Resolved   bool
}

// NewDeployContext starts a context from the deploy identity.
func NewDeployContext(id gitver.Identity) DeployContext {
	return DeployContext{Identity: id}
}

// WithConfigRepo returns a copy carrying the configuration repo status.
func (dc DeployContext) WithConfigRepo(st *gitver.RepoStatus) DeployContext {
	if st != nil {
		cp := *st
		cp.Errors = append([]string(nil), st.Errors...)
		st = &cp
	}
	dc.ConfigRepo = st
	return dc
}

// WithConfig returns a copy carrying the resolved configuration.
func (dc DeployContext) WithConfig(c Resolved) DeployContext {
	dc.Config = c
	dc.Resolved = true
	return dc
}

// Env returns the environment name once configuration is resolved.
func (dc DeployContext) Env() string {
	if !dc.Resolved {
		return ""
	}
	return dc.Config.Env
}

// ConfigCommit returns the configuration repository commit, if known.
func (dc DeployContext) ConfigCommit() (remoteURL, commit string) {
	if dc.ConfigRepo == nil {
		return "", ""
	}
	return dc.ConfigRepo.RemoteURL, dc.ConfigRepo.LocalCommit
}
