// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package runner executes commands for test environments and records a
// transcript of every invocation.
//
// Commands are run with a timeout. A timed-out command is not an error: its
// partial output is kept, its exit code is forced to 1 and the transcript
// records TIMEOUT in place of the return code, so callers can treat a hang
// like any other failing run.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dexbisect/bisectenv/errors"
	"github.com/dexbisect/bisectenv/internal/xcontext"
	"github.com/dexbisect/bisectenv/shutil"
)

// DefaultTimeout is applied when a caller passes a non-positive timeout.
const DefaultTimeout = 60 * time.Second

// errTimeout marks context cancellation caused by the command timeout, as
// opposed to cancellation of the caller's context.
var errTimeout = errors.New("command timed out")

// Result holds the outcome of a single command run.
type Result struct {
	// Output is the combined stdout and stderr of the command. On timeout
	// it holds whatever the command produced before it was killed.
	Output string
	// Code is the command's exit code. 1 if the command timed out.
	Code int
	// TimedOut reports whether the command was killed by the timeout.
	TimedOut bool
}

// ShellFunc runs a shell command line on a remote transport and returns its
// combined output and exit code.
type ShellFunc func(ctx context.Context, cmdline string) ([]byte, int, error)

// Local runs args as a process on the host with the given environment and
// appends a transcript block to log.
//
// The process is started in its own session. On timeout the whole session is
// killed so that children spawned by a wrapper script do not outlive the run.
// Failure to start the process is an error; a non-zero exit is not.
func Local(ctx context.Context, args, env []string, log io.Writer, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tctx, cancel := xcontext.WithTimeout(ctx, timeout, errTimeout)
	defer cancel(context.Canceled)

	var buf bytes.Buffer
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = env
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	cmd.SysProcAttr = &unix.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", args[0])
	}
	sid := cmd.Process.Pid // session ID matches PID

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timedOut := false
	var waitErr error
	select {
	case waitErr = <-done:
	case <-tctx.Done():
		if tctx.Err() != errTimeout {
			// The caller's context was canceled. Kill the session and
			// report the cancellation.
			killSession(sid, unix.SIGKILL)
			<-done
			return nil, errors.Wrap(tctx.Err(), "command canceled")
		}
		timedOut = true
		killSession(sid, unix.SIGKILL)
		waitErr = <-done
	}

	code := 0
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return nil, errors.Wrapf(waitErr, "failed to wait for %s", args[0])
		}
		code = exitErr.ExitCode()
	}
	if timedOut {
		code = 1
	}

	output := buf.String()
	writeTranscript(log, shutil.QuoteSlice(args), output, code, timedOut)
	return &Result{Output: output, Code: code, TimedOut: timedOut}, nil
}

// Remote runs cmdline via shell and appends a transcript block to log.
//
// The same timeout contract as Local applies. shell is expected to honor
// context cancellation; partial output it returned before the timeout is
// retained in the result.
func Remote(ctx context.Context, shell ShellFunc, cmdline string, log io.Writer, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tctx, cancel := xcontext.WithTimeout(ctx, timeout, errTimeout)
	defer cancel(context.Canceled)

	out, code, err := shell(tctx, cmdline)
	timedOut := false
	if err != nil {
		if tctx.Err() == errTimeout {
			timedOut = true
			code = 1
		} else if tctx.Err() != nil {
			return nil, errors.Wrap(tctx.Err(), "command canceled")
		} else {
			return nil, errors.Wrap(err, "failed to run remote command")
		}
	}

	output := string(out)
	writeTranscript(log, cmdline, output, code, timedOut)
	return &Result{Output: output, Code: code, TimedOut: timedOut}, nil
}

// writeTranscript appends one block describing a finished command to log.
// The block layout is fixed; tooling downstream greps these files.
func writeTranscript(log io.Writer, display, output string, code int, timedOut bool) {
	ret := fmt.Sprint(code)
	if timedOut {
		ret = "TIMEOUT"
	}
	fmt.Fprintf(log, "Command:\n%s\n%s\nReturn code: %s\n", display, output, ret)
}
