package gitver

import (
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// tokenSources are checked in order for an HTTPS fetch token. An empty
// user means GIT_USERNAME, falling back to "git".
var tokenSources = []struct{ env, user string }{
	{"WEBFREIGHT_GIT_TOKEN", ""},
	{"GIT_TOKEN", ""},
	{"GITHUB_TOKEN", "x-access-token"},
	{"GITLAB_TOKEN", "oauth2"},
	{"CI_JOB_TOKEN", "gitlab-ci-token"},
}

// FetchAuth returns basic auth for an HTTP(S) remote from the first token
// variable that is set. SSH and local remotes get nil, leaving go-git to
// its defaults (ssh-agent for SSH).
func FetchAuth(remoteURL string, getenv func(string) string) transport.AuthMethod {
	if getenv == nil {
		getenv = os.Getenv
	}
	lower := strings.ToLower(remoteURL)
	if !strings.HasPrefix(lower, "https://") && !strings.HasPrefix(lower, "http://") {
		return nil
	}
	for _, src := range tokenSources {
		token := getenv(src.env)
		if token == "" {
			continue
		}
		user := src.user
		if user == "" {
			user = getenv("GIT_USERNAME")
		}
		if user == "" {
			user = "git"
		}
		return &githttp.BasicAuth{Username: user, Password: token}
	}
	return nil
}
