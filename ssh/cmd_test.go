// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	cryptossh "golang.org/x/crypto/ssh"

	"github.com/dexbisect/bisectenv/ssh/test"
)

func TestCommandOutput(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	out, err := td.Conn.Command("echo", "hello").Output(td.Ctx)
	if err != nil {
		t.Fatal("Output failed: ", err)
	}
	if got, want := string(out), "hello\n"; got != want {
		t.Errorf("Output = %q; want %q", got, want)
	}
}

func TestCommandQuotesArgs(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	// Shell metacharacters in args must reach the command verbatim.
	out, err := td.Conn.Command("echo", "a b", "$HOME", "'quoted'").Output(td.Ctx)
	if err != nil {
		t.Fatal("Output failed: ", err)
	}
	if got, want := string(out), "a b $HOME 'quoted'\n"; got != want {
		t.Errorf("Output = %q; want %q", got, want)
	}
}

func TestShellCommandExitStatus(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	err := td.Conn.ShellCommand("exit 28").Run(td.Ctx)
	if err == nil {
		t.Fatal("Run unexpectedly succeeded")
	}
	exitErr, ok := err.(*cryptossh.ExitError)
	if !ok {
		t.Fatalf("Run returned %T; want *ssh.ExitError", err)
	}
	if got := exitErr.ExitStatus(); got != 28 {
		t.Errorf("ExitStatus() = %d; want 28", got)
	}
}

func TestCombinedOutput(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	out, err := td.Conn.ShellCommand("echo out; echo err 1>&2").CombinedOutput(td.Ctx)
	if err != nil {
		t.Fatal("CombinedOutput failed: ", err)
	}
	// stdout and stderr travel on separate SSH streams, so do not assume ordering.
	for _, want := range []string{"out\n", "err\n"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("CombinedOutput = %q; should contain %q", string(out), want)
		}
	}
}

func TestCommandStdin(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	cmd := td.Conn.Command("cat")
	cmd.Stdin = strings.NewReader("from stdin")
	out, err := cmd.Output(td.Ctx)
	if err != nil {
		t.Fatal("Output failed: ", err)
	}
	if got, want := string(out), "from stdin"; got != want {
		t.Errorf("Output = %q; want %q", got, want)
	}
}

func TestStartWait(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	var buf bytes.Buffer
	cmd := td.Conn.Command("echo", "started")
	cmd.Stdout = &buf
	if err := cmd.Start(td.Ctx); err != nil {
		t.Fatal("Start failed: ", err)
	}
	if err := cmd.Wait(td.Ctx); err != nil {
		t.Fatal("Wait failed: ", err)
	}
	if got, want := buf.String(), "started\n"; got != want {
		t.Errorf("Stdout = %q; want %q", got, want)
	}
}

func TestWaitWithoutStart(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	if err := td.Conn.Command("true").Wait(td.Ctx); err == nil {
		t.Error("Wait on an unstarted command unexpectedly succeeded")
	}
}

func TestAbort(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	cmd := td.Conn.Command("sleep", "60")
	if err := cmd.Start(td.Ctx); err != nil {
		t.Fatal("Start failed: ", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait(td.Ctx) }()

	cmd.Abort()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Wait unexpectedly succeeded after Abort")
		}
	case <-time.After(30 * time.Second):
		t.Fatal("Wait did not return after Abort")
	}
}

func TestRunCanceledContext(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	ctx, cancel := context.WithTimeout(td.Ctx, 100*time.Millisecond)
	defer cancel()
	if err := td.Conn.Command("sleep", "60").Run(ctx); err == nil {
		t.Error("Run unexpectedly succeeded with an expired context")
	}
}
