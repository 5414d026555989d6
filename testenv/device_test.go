// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testenv_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dexbisect/bisectenv/errors"
	"github.com/dexbisect/bisectenv/testenv"
)

// fakeTransport records calls and serves canned shell responses.
type fakeTransport struct {
	mkdirs  []string
	pushes  map[string]string // remote path -> pushed content
	pushed  []string          // remote paths in push order
	shells  []string
	shellFn func(ctx context.Context, cmdline string) ([]byte, int, error)
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{pushes: make(map[string]string)}
}

func (f *fakeTransport) MkdirAll(ctx context.Context, path string) error {
	f.mkdirs = append(f.mkdirs, path)
	return nil
}

func (f *fakeTransport) Push(ctx context.Context, localPath, remotePath string) error {
	b, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.pushes[remotePath] = string(b)
	f.pushed = append(f.pushed, remotePath)
	return nil
}

func (f *fakeTransport) PushAll(ctx context.Context, files map[string]string) error {
	for local, remote := range files {
		if err := f.Push(ctx, local, remote); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTransport) Shell(ctx context.Context, cmdline string) ([]byte, int, error) {
	f.shells = append(f.shells, cmdline)
	if f.shellFn != nil {
		return f.shellFn(ctx, cmdline)
	}
	return nil, 0, nil
}

func (f *fakeTransport) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func newTestDevice(t *testing.T, tr testenv.Transport) *testenv.Device {
	t.Helper()
	d, err := testenv.NewDevice(context.Background(), tr, nil)
	if err != nil {
		t.Fatal("NewDevice failed: ", err)
	}
	t.Cleanup(func() {
		hostDir := filepath.Dir(d.Logfile().Name())
		d.Close(context.Background())
		os.RemoveAll(hostDir)
	})
	return d
}

func TestNewDeviceCreatesRemoteCacheDirs(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDevice(t, tr)

	if !strings.HasPrefix(d.RemoteDir(), "/data/local/tmp/bisection_search_") {
		t.Errorf("RemoteDir = %q; want a /data/local/tmp/bisection_search_* path", d.RemoteDir())
	}

	var want []string
	for _, arch := range []string{"arm", "arm64", "x86", "x86_64"} {
		want = append(want, d.RemoteDir()+"/dalvik-cache/"+arch)
	}
	if diff := cmp.Diff(tr.mkdirs, want); diff != "" {
		t.Errorf("Remote mkdirs mismatch (-got +want):\n%s", diff)
	}
}

func TestDeviceCreateFile(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDevice(t, tr)
	ctx := context.Background()

	named, err := d.CreateFile(ctx, "input.txt")
	if err != nil {
		t.Fatal("CreateFile failed: ", err)
	}
	if want := d.RemoteDir() + "/input.txt"; named != want {
		t.Errorf("CreateFile = %q; want %q", named, want)
	}
	if content, ok := tr.pushes[named]; !ok {
		t.Errorf("No push recorded for %q", named)
	} else if content != "" {
		t.Errorf("Pushed content = %q; want empty", content)
	}

	anon, err := d.CreateFile(ctx, "")
	if err != nil {
		t.Fatal("CreateFile failed: ", err)
	}
	if !strings.HasPrefix(anon, d.RemoteDir()+"/") {
		t.Errorf("CreateFile = %q; want a path under %q", anon, d.RemoteDir())
	}
	if _, ok := tr.pushes[anon]; !ok {
		t.Errorf("No push recorded for %q", anon)
	}
}

func TestDeviceWriteLines(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDevice(t, tr)

	target := d.RemoteDir() + "/input.txt"
	if err := d.WriteLines(context.Background(), target, []string{"a", "b"}); err != nil {
		t.Fatal("WriteLines failed: ", err)
	}
	if got := tr.pushes[target]; got != "a\nb\n" {
		t.Errorf("Pushed content = %q; want %q", got, "a\nb\n")
	}
}

func TestDeviceRunCommand(t *testing.T) {
	tr := newFakeTransport()
	tr.shellFn = func(ctx context.Context, cmdline string) ([]byte, int, error) {
		if strings.HasPrefix(cmdline, "if [ -d ") {
			return nil, 0, nil // cache clear
		}
		return []byte("ok\n"), 0, nil
	}
	d := newTestDevice(t, tr)

	out, code, err := d.RunCommand(context.Background(), []string{"dex2oat", "--arg=1"}, nil)
	if err != nil {
		t.Fatal("RunCommand failed: ", err)
	}
	if out != "ok\n" || code != 0 {
		t.Errorf("RunCommand = (%q, %d); want (%q, 0)", out, code, "ok\n")
	}

	if len(tr.shells) != 2 {
		t.Fatalf("Got %d shell calls; want 2 (cache clear + command): %q", len(tr.shells), tr.shells)
	}
	clear, cmd := tr.shells[0], tr.shells[1]
	for _, arch := range []string{"arm", "arm64", "x86", "x86_64"} {
		if !strings.Contains(clear, d.RemoteDir()+"/dalvik-cache/"+arch) {
			t.Errorf("Cache clear %q misses arch %q", clear, arch)
		}
	}
	if !strings.HasPrefix(cmd, "logcat -c && ") {
		t.Errorf("Command %q does not clear the log buffer first", cmd)
	}
	if want := "ANDROID_DATA=" + d.RemoteDir() + ` "dex2oat" "--arg=1"`; !strings.Contains(cmd, want) {
		t.Errorf("Command %q lacks %q", cmd, want)
	}
	if want := `; logcat -d -s dex2oat:* dex2oatd:* | grep -v "^---------" 1>&2`; !strings.HasSuffix(cmd, want) {
		t.Errorf("Command %q does not end with the diagnostic dump %q", cmd, want)
	}

	log, err := os.ReadFile(d.Logfile().Name())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(log), "ok\n") || !strings.Contains(string(log), "Return code: 0\n") {
		t.Errorf("Transcript %q lacks output or return code", string(log))
	}
}

func TestDeviceRunCommandAndroidDataOverride(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDevice(t, tr)

	if _, _, err := d.RunCommand(context.Background(), []string{"true"},
		map[string]string{"ANDROID_DATA": "/custom", "EXTRA": "x"}); err != nil {
		t.Fatal("RunCommand failed: ", err)
	}

	cmd := tr.shells[len(tr.shells)-1]
	if !strings.Contains(cmd, "ANDROID_DATA=/custom") {
		t.Errorf("Command %q lacks the ANDROID_DATA override", cmd)
	}
	if strings.Contains(cmd, "ANDROID_DATA="+d.RemoteDir()) {
		t.Errorf("Command %q injected ANDROID_DATA despite the override", cmd)
	}
	if !strings.Contains(cmd, "EXTRA=x") {
		t.Errorf("Command %q lacks the extra assignment", cmd)
	}
}

func TestDeviceRunCommandClearFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.shellFn = func(ctx context.Context, cmdline string) ([]byte, int, error) {
		return nil, 0, errors.New("device gone")
	}
	d := newTestDevice(t, tr)

	if _, _, err := d.RunCommand(context.Background(), []string{"true"}, nil); err == nil {
		t.Error("RunCommand unexpectedly succeeded with a failing transport")
	}
}

func TestDevicePushClasspath(t *testing.T) {
	tr := newFakeTransport()
	d := newTestDevice(t, tr)

	hostDir := filepath.Dir(d.Logfile().Name())
	jars := []string{filepath.Join(hostDir, "a.jar"), filepath.Join(hostDir, "b.jar")}
	for _, p := range jars {
		if err := os.WriteFile(p, []byte(filepath.Base(p)), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := d.PushClasspath(context.Background(), strings.Join(jars, ":"))
	if err != nil {
		t.Fatal("PushClasspath failed: ", err)
	}
	want := d.RemoteDir() + "/a.jar:" + d.RemoteDir() + "/b.jar"
	if got != want {
		t.Errorf("PushClasspath = %q; want %q", got, want)
	}
	for _, remote := range []string{d.RemoteDir() + "/a.jar", d.RemoteDir() + "/b.jar"} {
		if _, ok := tr.pushes[remote]; !ok {
			t.Errorf("No push recorded for %q", remote)
		}
	}
}

func TestDeviceClose(t *testing.T) {
	tr := newFakeTransport()
	d, err := testenv.NewDevice(context.Background(), tr, nil)
	if err != nil {
		t.Fatal("NewDevice failed: ", err)
	}
	hostDir := filepath.Dir(d.Logfile().Name())
	defer os.RemoveAll(hostDir)

	if err := d.Close(context.Background()); err != nil {
		t.Error("Close failed: ", err)
	}
	if !tr.closed {
		t.Error("Close did not close the transport")
	}
}
