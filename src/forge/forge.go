// Package forge builds web links into the git forge hosting a repository
// (GitLab, GitHub, Gitea/Forgejo). Notifications use it to deep-link the
// deployed source commit and the configuration commit.
package forge

import "strings"

// Provider identifies a git forge platform.
type Provider string

const (
	GitLab  Provider = "gitlab"
	GitHub  Provider = "github"
	Gitea   Provider = "gitea"
	Unknown Provider = "unknown"
)

// RepoURL returns the web URL of the repository behind a git remote, in
// https form and without a ".git" suffix.
func RepoURL(remoteURL string) string {
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return ""
	}
	base := BaseURL(remoteURL)
	path := repoPath(remoteURL)
	if path == "" {
		return base
	}
	return base + "/" + path
}

// CommitURL returns the web URL of a commit, or "" when either part is unknown.
func CommitURL(remoteURL, commit string) string {
	repo := RepoURL(remoteURL)
	if repo == "" || commit == "" {
		return ""
	}
	switch DetectProvider(remoteURL) {
	case GitLab:
		return repo + "/-/commit/" + commit
	default:
		// GitHub, Gitea and Forgejo share the same layout.
		return repo + "/commit/" + commit
	}
}

// repoPath extracts "org/repo" from SSH and HTTPS remotes.
func repoPath(remoteURL string) string {
	u := remoteURL
	for _, scheme := range []string{"https://", "http://", "ssh://"} {
		if strings.HasPrefix(u, scheme) {
			u = strings.TrimPrefix(u, scheme)
			if i := strings.Index(u, "/"); i >= 0 {
				u = u[i+1:]
			} else {
				u = ""
			}
			return trimRepo(u)
		}
	}
	// scp-like: git@host:org/repo.git
	if i := strings.Index(u, ":"); i >= 0 {
		return trimRepo(u[i+1:])
	}
	return ""
}

func trimRepo(p string) string {
	p = strings.Trim(p, "/")
	return strings.TrimSuffix(p, ".git")
}
