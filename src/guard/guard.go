// Package guard refuses to deploy from a configuration checkout that does
// not match what was pushed, and decrypts the secrets of a checkout that does.
package guard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sofmeright/webfreight/src/config"
	"github.com/sofmeright/webfreight/src/gitver"
	"github.com/sofmeright/webfreight/src/logging"
)

var (
	// ErrConfigRepoStale is returned when the configuration repository has
	// uncommitted, unpushed or outdated content.
	ErrConfigRepoStale = errors.New("configuration repository is not up to date")

	// ErrSecretDecryption is returned when the secrets file cannot be decrypted.
	ErrSecretDecryption = errors.New("secret decryption failed")
)

// DefaultSecretsFile is the encrypted secrets file inside the config directory.
const DefaultSecretsFile = "secrets.enc.yml"

// StaleError lists every validation error of a stale configuration repo.
type StaleError struct {
	RemoteURL string
	Errors    []string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("%s (%s): %s", ErrConfigRepoStale, e.RemoteURL, strings.Join(e.Errors, "; "))
}

func (e *StaleError) Unwrap() error { return ErrConfigRepoStale }

// Guard checks the configuration repository before anything else runs.
type Guard struct {
	Inspector   gitver.Inspector
	Decryptor   SecretDecryptor
	SecretsFile string // relative to the config directory; DefaultSecretsFile when empty
	Logger      *zap.Logger

	// BeforeDecrypt, when set, runs right before the decryptor is invoked.
	BeforeDecrypt func(ctx context.Context)
}

// Result is the outcome of a successful check.
type Result struct {
	Status *gitver.RepoStatus
	// Decrypted is the plaintext secrets path, empty when nothing was decrypted.
	Decrypted string
}

// Check inspects configDir and, when it is up to date and the run builds
// bundles, decrypts the secrets file into its plaintext sibling.
func (g *Guard) Check(ctx context.Context, configDir string, staticOnly bool) (*Result, error) {
	log := logging.OrNop(g.Logger)

	st, err := g.Inspector.Status(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", configDir, err)
	}
	res := &Result{Status: st}

	if !st.UpToDate {
		if gitver.IsConfigRepo(st.RemoteURL) {
			return res, &StaleError{RemoteURL: st.RemoteURL, Errors: st.Errors}
		}
		log.Warn("configuration directory is not a verified config repository; skipping decryption",
			zap.String("path", configDir),
			zap.String("remote", st.RemoteURL),
			zap.Strings("errors", st.Errors))
		return res, nil
	}

	if staticOnly {
		log.Debug("static deploy; secrets left encrypted")
		return res, nil
	}

	name := g.SecretsFile
	if name == "" {
		name = DefaultSecretsFile
	}
	encrypted := filepath.Join(configDir, name)
	if _, err := os.Stat(encrypted); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("no encrypted secrets file", zap.String("path", encrypted))
			return res, nil
		}
		return res, fmt.Errorf("%w: %v", ErrSecretDecryption, err)
	}

	plaintext := config.PlaintextPath(encrypted)
	if g.BeforeDecrypt != nil {
		g.BeforeDecrypt(ctx)
	}
	if err := g.decrypt(ctx, encrypted, plaintext); err != nil {
		// A stale plaintext must not outlive a failed decryption.
		if rmErr := os.Remove(plaintext); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			log.Warn("removing stale plaintext secrets", zap.String("path", plaintext), zap.Error(rmErr))
		}
		return res, fmt.Errorf("%w: %v", ErrSecretDecryption, err)
	}
	log.Info("decrypted secrets", zap.String("path", plaintext), zap.String("commit", st.LocalCommit))
	res.Decrypted = plaintext
	return res, nil
}

// decrypt replaces plaintext with the decrypted content of encrypted.
// The write goes through a temp file and rename so the old file is
// replaced whole or not at all.
func (g *Guard) decrypt(ctx context.Context, encrypted, plaintext string) error {
	data, err := g.Decryptor.Decrypt(ctx, encrypted)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(plaintext), ".secrets-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, plaintext)
}
