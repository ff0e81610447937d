package guard

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// SecretDecryptor turns an encrypted secrets file into plaintext bytes.
type SecretDecryptor interface {
	Decrypt(ctx context.Context, path string) ([]byte, error)
}

// DefaultDecryptCommand is used when WEBFREIGHT_DECRYPT_COMMAND is unset.
const DefaultDecryptCommand = "sops --decrypt"

// CommandDecryptor shells out to an external tool. The encrypted file path
// is appended as the last argument and plaintext is read from stdout.
type CommandDecryptor struct {
	Command []string
}

// NewCommandDecryptor builds a decryptor from WEBFREIGHT_DECRYPT_COMMAND,
// falling back to sops.
func NewCommandDecryptor() *CommandDecryptor {
	cmd := strings.TrimSpace(os.Getenv("WEBFREIGHT_DECRYPT_COMMAND"))
	if cmd == "" {
		cmd = DefaultDecryptCommand
	}
	return &CommandDecryptor{Command: strings.Fields(cmd)}
}

func (d *CommandDecryptor) Decrypt(ctx context.Context, path string) ([]byte, error) {
	if len(d.Command) == 0 {
		return nil, fmt.Errorf("no decrypt command configured")
	}
	args := append(append([]string(nil), d.Command[1:]...), path)
	cmd := exec.CommandContext(ctx, d.Command[0], args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", d.Command[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", d.Command[0], err)
	}
	return out, nil
}
