package gitver

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
)

// Identity tags every notification of a run.
type Identity struct {
	Commit         string
	PackageName    string
	PackageVersion string // semver-normalised when parsable, raw otherwise
	Prerelease     bool
	RepoURL        string // https form of the origin remote
	Actor          string
}

// ShortCommit returns the first seven characters of the commit hash.
func (id Identity) ShortCommit() string {
	if len(id.Commit) > 7 {
		return id.Commit[:7]
	}
	return id.Commit
}

// Label returns "name@version", falling back to the repository name.
func (id Identity) Label() string {
	name := id.PackageName
	if name == "" {
		name = repoNameFromRemote(id.RepoURL)
	}
	if id.PackageVersion == "" {
		return name
	}
	return name + "@" + id.PackageVersion
}

// actorEnv lists the variables consulted for the deploying user, in order.
var actorEnv = []string{"WEBFREIGHT_ACTOR", "GITHUB_ACTOR", "GITLAB_USER_LOGIN", "USER", "USERNAME"}

// DetectIdentity resolves the deploy identity of the project at rootDir.
// Missing pieces are left empty; only an unreadable package.json is an error.
func DetectIdentity(rootDir string) (Identity, error) {
	id := Identity{}

	repo, err := git.PlainOpenWithOptions(rootDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		if head, err := repo.Head(); err == nil {
			id.Commit = head.Hash().String()
		}
		if remote, err := repo.Remote(DefaultRemote); err == nil && len(remote.Config().URLs) > 0 {
			id.RepoURL = remoteToHTTPS(remote.Config().URLs[0])
		}
	}

	for _, key := range actorEnv {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			id.Actor = v
			break
		}
	}
	if id.Actor == "" && repo != nil {
		if cfg, err := repo.ConfigScoped(gitconfig.GlobalScope); err == nil {
			id.Actor = cfg.User.Name
		}
	}

	pkg, err := readPackageJSON(filepath.Join(rootDir, "package.json"))
	if err != nil {
		return id, err
	}
	id.PackageName = pkg.Name
	id.PackageVersion, id.Prerelease = normalizeVersion(pkg.Version)
	return id, nil
}

type packageJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func readPackageJSON(path string) (packageJSON, error) {
	var pkg packageJSON
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pkg, nil
		}
		return pkg, err
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return pkg, err
	}
	return pkg, nil
}

// normalizeVersion parses raw as semver. Unparsable versions pass through.
func normalizeVersion(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	v, err := masterminds.NewVersion(raw)
	if err != nil {
		return raw, false
	}
	return v.String(), v.Prerelease() != ""
}

// IsConfigRepo reports whether a remote URL names a configuration
// repository: its name is "config" or ends in "-config".
func IsConfigRepo(remoteURL string) bool {
	if remoteURL == "" {
		return false
	}
	name := strings.ToLower(repoNameFromRemote(remoteURL))
	return name == "config" || strings.HasSuffix(name, "-config")
}

// repoNameFromRemote extracts the repository name from a git remote URL.
// Handles SSH (git@host:org/repo.git) and HTTPS (https://host/org/repo.git).
func repoNameFromRemote(remote string) string {
	remote = strings.TrimSuffix(strings.TrimRight(remote, "/"), ".git")

	// SSH: git@host:org/repo
	if idx := strings.LastIndex(remote, ":"); idx != -1 && !strings.Contains(remote, "://") {
		remote = remote[idx+1:]
	}

	if idx := strings.LastIndex(remote, "/"); idx != -1 {
		return remote[idx+1:]
	}
	return remote
}

// remoteToHTTPS converts a git remote URL to HTTPS format for links.
// SSH remotes (git@host:org/repo.git) become https://host/org/repo.
func remoteToHTTPS(remote string) string {
	remote = strings.TrimSuffix(remote, ".git")

	if strings.HasPrefix(remote, "https://") || strings.HasPrefix(remote, "http://") {
		return remote
	}

	// ssh://git@host/org/repo
	if rest, ok := strings.CutPrefix(remote, "ssh://"); ok {
		if idx := strings.Index(rest, "@"); idx != -1 {
			rest = rest[idx+1:]
		}
		return "https://" + rest
	}

	// git@host:org/repo → https://host/org/repo
	if idx := strings.Index(remote, "@"); idx != -1 {
		rest := remote[idx+1:]
		rest = strings.Replace(rest, ":", "/", 1)
		return "https://" + rest
	}

	return remote
}
