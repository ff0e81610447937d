// Package gitver inspects git working copies with go-git. It answers two
// questions for a deploy: is the configuration checkout exactly what was
// pushed, and which commit/package/actor is being deployed.
package gitver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// DefaultRemote is the remote every check is made against.
const DefaultRemote = "origin"

// RepoStatus describes how a checkout relates to its remote.
type RepoStatus struct {
	RemoteURL   string
	LocalCommit string
	Root        string
	Branch      string
	UpToDate    bool
	Errors      []string
}

// Inspector reports the repository status of a directory.
type Inspector interface {
	Status(ctx context.Context, path string) (*RepoStatus, error)
}

// GoGitInspector implements Inspector on top of go-git.
type GoGitInspector struct {
	// Fetch refreshes remote-tracking refs before comparing. Disabled in
	// tests and offline runs.
	Fetch bool
	// Auth overrides the credentials used to fetch. When nil, FetchAuth
	// picks a token from the environment.
	Auth transport.AuthMethod
}

// Status opens the repository containing path and validates that the
// worktree is clean and HEAD matches the remote-tracking branch.
// A directory outside any repository yields a status with a single error.
func (g GoGitInspector) Status(ctx context.Context, path string) (*RepoStatus, error) {
	st := &RepoStatus{Root: path}

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			st.Errors = append(st.Errors, fmt.Sprintf("%s is not a git repository", path))
			return st, nil
		}
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("reading worktree: %w", err)
	}
	st.Root = wt.Filesystem.Root()

	if remote, err := repo.Remote(DefaultRemote); err == nil && len(remote.Config().URLs) > 0 {
		st.RemoteURL = remote.Config().URLs[0]
	} else {
		st.Errors = append(st.Errors, fmt.Sprintf("no %q remote configured", DefaultRemote))
	}

	head, err := repo.Head()
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("reading HEAD: %v", err))
		return st, nil
	}
	st.LocalCommit = head.Hash().String()

	if g.Fetch && st.RemoteURL != "" {
		auth := g.Auth
		if auth == nil {
			auth = FetchAuth(st.RemoteURL, nil)
		}
		err := repo.FetchContext(ctx, &git.FetchOptions{RemoteName: DefaultRemote, Auth: auth})
		switch {
		case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
			st.Errors = append(st.Errors, fmt.Sprintf("fetching %s: %v; set GIT_TOKEN or pass --no-fetch", DefaultRemote, err))
		default:
			st.Errors = append(st.Errors, fmt.Sprintf("fetching %s: %v", DefaultRemote, err))
		}
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading worktree status: %w", err)
	}
	st.Errors = append(st.Errors, dirtyPaths(status)...)

	if !head.Name().IsBranch() {
		st.Errors = append(st.Errors, "HEAD is detached; check out a branch")
	} else {
		st.Branch = head.Name().Short()
		if st.RemoteURL != "" {
			if msg := compareUpstream(repo, head, st.Branch); msg != "" {
				st.Errors = append(st.Errors, msg)
			}
		}
	}

	st.UpToDate = len(st.Errors) == 0
	return st, nil
}

// dirtyPaths lists uncommitted and untracked files, sorted for stable output.
func dirtyPaths(status git.Status) []string {
	var out []string
	for path, fs := range status {
		switch {
		case fs.Worktree == git.Untracked:
			out = append(out, fmt.Sprintf("untracked file: %s", path))
		case fs.Staging != git.Unmodified:
			out = append(out, fmt.Sprintf("uncommitted change (staged): %s", path))
		case fs.Worktree != git.Unmodified:
			out = append(out, fmt.Sprintf("uncommitted change: %s", path))
		}
	}
	sort.Strings(out)
	return out
}

// compareUpstream returns an empty string when HEAD equals the
// remote-tracking branch, otherwise a description of the difference.
func compareUpstream(repo *git.Repository, head *plumbing.Reference, branch string) string {
	upstreamName := plumbing.NewRemoteReferenceName(DefaultRemote, branch)
	upstream, err := repo.Reference(upstreamName, true)
	if err != nil {
		return fmt.Sprintf("branch %s has no upstream %s; push it first", branch, upstreamName.Short())
	}
	if upstream.Hash() == head.Hash() {
		return ""
	}

	local, err := repo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Sprintf("branch %s differs from %s", branch, upstreamName.Short())
	}
	remote, err := repo.CommitObject(upstream.Hash())
	if err != nil {
		return fmt.Sprintf("branch %s differs from %s (remote commit %s not available locally)",
			branch, upstreamName.Short(), upstream.Hash().String()[:7])
	}
	return describeDivergence(local, remote, branch, upstreamName.Short())
}

func describeDivergence(local, remote *object.Commit, branch, upstream string) string {
	if ok, err := remote.IsAncestor(local); err == nil && ok {
		return fmt.Sprintf("branch %s has commits not pushed to %s", branch, upstream)
	}
	if ok, err := local.IsAncestor(remote); err == nil && ok {
		return fmt.Sprintf("branch %s is behind %s; pull first", branch, upstream)
	}
	return fmt.Sprintf("branch %s has diverged from %s", branch, upstream)
}
