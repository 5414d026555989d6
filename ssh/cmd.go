// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"

	"github.com/dexbisect/bisectenv/errors"
	"github.com/dexbisect/bisectenv/shutil"
)

// Cmd represents an external command being prepared or run on a remote host.
//
// This type implements an interface similar to Cmd in os/exec, with one
// notable difference: methods take context.Context so different deadlines can
// apply to different operations (e.g. Start and Wait) on the same command.
type Cmd struct {
	// cmd is the shell command line sent in the SSH "exec" request.
	cmd string

	// Stdin specifies the process's standard input.
	Stdin io.Reader

	// Stdout specifies the process's standard output.
	Stdout io.Writer

	// Stderr specifies the process's standard error.
	Stderr io.Writer

	conn  *Conn
	state cmdState
	abort chan struct{} // closed when Abort is called
	sess  *ssh.Session
}

// cmdState represents a state of a Cmd. cmdState is used to prevent typical misuse of
// Cmd methods, though it does not catch all concurrent cases.
type cmdState int

const (
	stateNew     cmdState = iota // newly created
	stateStarted                 // after Start is called
	stateClosing                 // after waitAndClose is called
	stateDone                    // after waitAndClose is returned or initialization failed
)

func (s cmdState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateStarted:
		return "started"
	case stateClosing:
		return "closing"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("invalid(%d)", int(s))
	}
}

// Command returns a Cmd that executes the named program with the given
// arguments on the remote host. The arguments are quoted so the remote shell
// does not interpret them.
func (s *Conn) Command(name string, args ...string) *Cmd {
	return &Cmd{
		cmd:   "exec " + shutil.EscapeSlice(append([]string{name}, args...)),
		conn:  s,
		abort: make(chan struct{}),
	}
}

// ShellCommand returns a Cmd that passes cmdline verbatim to the remote
// user's shell. Use Command instead when arguments may contain shell
// metacharacters.
func (s *Conn) ShellCommand(cmdline string) *Cmd {
	return &Cmd{
		cmd:   cmdline,
		conn:  s,
		abort: make(chan struct{}),
	}
}

// Run starts the command and waits for it to complete.
//
// The command is aborted when ctx's deadline is reached. If the command exits
// with a non-zero status, the returned error is of type *ssh.ExitError.
func (c *Cmd) Run(ctx context.Context) error {
	if err := c.startSession(ctx); err != nil {
		return err
	}
	return c.waitAndClose(ctx, func() error {
		return c.sess.Run(c.cmd)
	})
}

// Output runs the command and returns its standard output.
func (c *Cmd) Output(ctx context.Context) ([]byte, error) {
	if err := c.startSession(ctx); err != nil {
		return nil, err
	}
	var out []byte
	err := c.waitAndClose(ctx, func() error {
		var err error
		out, err = c.sess.Output(c.cmd)
		return err
	})
	return out, err
}

// CombinedOutput runs the command and returns its combined standard output
// and standard error.
func (c *Cmd) CombinedOutput(ctx context.Context) ([]byte, error) {
	if err := c.startSession(ctx); err != nil {
		return nil, err
	}
	var out []byte
	err := c.waitAndClose(ctx, func() error {
		var err error
		out, err = c.sess.CombinedOutput(c.cmd)
		return err
	})
	return out, err
}

// Start starts the command but does not wait for it to complete.
func (c *Cmd) Start(ctx context.Context) error {
	if err := c.startSession(ctx); err != nil {
		return err
	}
	if err := doAsync(ctx, func() error {
		return c.sess.Start(c.cmd)
	}, func() {
		c.sess.Close()
	}); err != nil {
		c.state = stateDone
		return err
	}
	return nil
}

// Wait waits for a command started by Start to exit.
//
// It is an error to call this method multiple times. The command is aborted
// when ctx's deadline is reached; the deadline of the context passed to Start
// also applies.
func (c *Cmd) Wait(ctx context.Context) error {
	if c.state != stateStarted {
		return errors.New("process not active")
	}
	return c.waitAndClose(ctx, func() error {
		return c.sess.Wait()
	})
}

// Abort requests to abort the command execution.
//
// This method does not block, but you still need to call Wait. It is safe to
// call this method while calling Wait/Run/Output/CombinedOutput in another
// goroutine. This method can be called at most once.
func (c *Cmd) Abort() {
	close(c.abort)
}

// startSession starts a new SSH session and sets c.sess.
func (c *Cmd) startSession(ctx context.Context) error {
	if c.state != stateNew {
		return errors.New("cannot start sessions multiple times")
	}
	if c.conn == nil {
		return errors.New("SSH connection is not available")
	}

	// Set the state early to reject startSession to be called twice.
	c.state = stateStarted

	var sess *ssh.Session
	if err := doAsync(ctx, func() error {
		var err error
		sess, err = c.conn.cl.NewSession()
		if err != nil {
			return err
		}
		sess.Stdin = c.Stdin
		sess.Stdout = c.Stdout
		sess.Stderr = c.Stderr
		return nil
	}, func() {
		if sess != nil {
			sess.Close()
		}
	}); err != nil {
		c.state = stateDone
		return errors.Wrap(err, "failed to create session")
	}

	c.sess = sess
	return nil
}

// waitAndClose runs f which waits for the command to finish, and closes the
// session.
func (c *Cmd) waitAndClose(ctx context.Context, f func() error) error {
	if c.state != stateStarted {
		return errors.Errorf("waitAndClose called in invalid state (%v)", c.state)
	}

	c.state = stateClosing

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cancel the context when Abort is called.
	go func() {
		select {
		case <-c.abort:
			cancel()
		case <-ctx.Done():
		}
	}()

	retErr := doAsync(ctx, f, nil)

	if err := doAsync(ctx, func() error {
		c.sess.Signal(ssh.SIGKILL) // in case the command is still running
		return c.sess.Close()
	}, nil); err != nil && err != io.EOF && retErr == nil { // Close returns io.EOF on success
		retErr = err
	}

	c.state = stateDone
	return retErr
}
