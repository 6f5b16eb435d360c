package wpa

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // binary comes from operator configuration
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// cli talks to a supplicant through wpa_cli.
type cli struct {
	runner  Runner
	binary  string
	ctrlDir string
	iface   string
}

func (c cli) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-p", c.ctrlDir, "-i", c.iface}, args...)
	out, err := c.runner.Run(ctx, c.binary, full...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// expect runs a command whose only acceptable reply is want.
func (c cli) expect(ctx context.Context, want string, args ...string) error {
	reply, err := c.run(ctx, args...)
	if err != nil {
		return err
	}
	if reply != want {
		return fmt.Errorf("%w: %s: %q", ErrCommandFailed, strings.Join(args, " "), reply)
	}
	return nil
}

func (c cli) ping(ctx context.Context) error {
	if err := c.expect(ctx, "PONG", "ping"); err != nil {
		return fmt.Errorf("%w: %w", ErrSupplicantDown, err)
	}
	return nil
}

// status returns the key=value pairs of STATUS.
func (c cli) status(ctx context.Context) (map[string]string, error) {
	reply, err := c.run(ctx, "status")
	if err != nil {
		return nil, err
	}
	if reply == "FAIL" {
		return nil, fmt.Errorf("%w: status", ErrCommandFailed)
	}
	return parseStatus(reply), nil
}

// addNetwork replaces every configured network with one built from fields
// and enables it.
func (c cli) addNetwork(ctx context.Context, fields [][2]string) error {
	if err := c.expect(ctx, "OK", "remove_network", "all"); err != nil {
		return err
	}

	reply, err := c.run(ctx, "add_network")
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(reply)
	if err != nil {
		return fmt.Errorf("%w: add_network: %q", ErrCommandFailed, reply)
	}
	netID := strconv.Itoa(id)

	for _, f := range fields {
		if err := c.expect(ctx, "OK", "set_network", netID, f[0], f[1]); err != nil {
			return err
		}
	}
	return c.expect(ctx, "OK", "enable_network", netID)
}

// parseStatus parses wpa_cli STATUS output.
func parseStatus(out string) map[string]string {
	status := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		status[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return status
}
