package wpcli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/wp-updater/wp-updater/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// Runner executes one wp-cli invocation and returns its standard output.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// CommandError is a failed wp-cli invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("wp %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs the wp-cli binary as a subprocess.
type ExecRunner struct {
	Binary string
}

// Run starts the binary, captures stdout and streams stderr into the debug log.
func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	binary := r.Binary
	if binary == "" {
		binary = "wp"
	}
	entry := log.WithField("cmd", binary)
	entry.Debugf("Running %s %s", binary, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &CommandError{Args: args, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &CommandError{Args: args, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &CommandError{Args: args, Err: err}
	}

	var out, errOut bytes.Buffer
	var eg errgroup.Group
	eg.Go(func() error {
		_, err := io.Copy(&out, stdout)
		return err
	})
	eg.Go(func() error {
		err := utils.LogPipe(io.TeeReader(stderr, &errOut), entry, log.DebugLevel)
		_, _ = io.Copy(io.Discard, stderr)
		return err
	})
	readErr := eg.Wait()

	if err := cmd.Wait(); err != nil {
		return out.Bytes(), &CommandError{Args: args, Stderr: strings.TrimSpace(errOut.String()), Err: err}
	}
	if readErr != nil {
		return out.Bytes(), &CommandError{Args: args, Err: readErr}
	}
	return out.Bytes(), nil
}
