// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dexbisect/bisectenv/ssh"
	"github.com/dexbisect/bisectenv/ssh/test"
	"github.com/dexbisect/bisectenv/testutil"
)

func TestPutFile(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	srcDir := testutil.TempDir(t)
	defer os.RemoveAll(srcDir)
	dstDir := testutil.TempDir(t)
	defer os.RemoveAll(dstDir)

	const content = "line one\nline two\n"
	src := filepath.Join(srcDir, "src.txt")
	if err := os.WriteFile(src, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dstDir, "dst.txt")
	if err := ssh.PutFile(td.Ctx, td.Conn, src, dst); err != nil {
		t.Fatal("PutFile failed: ", err)
	}

	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != content {
		t.Errorf("Copied file has content %q; want %q", string(b), content)
	}
}

func TestPutFileMissingSource(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	dstDir := testutil.TempDir(t)
	defer os.RemoveAll(dstDir)

	if err := ssh.PutFile(td.Ctx, td.Conn, filepath.Join(dstDir, "no_such_file"),
		filepath.Join(dstDir, "dst")); err == nil {
		t.Error("PutFile with a missing source unexpectedly succeeded")
	}
}

func TestPutFiles(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	srcDir := testutil.TempDir(t)
	defer os.RemoveAll(srcDir)
	dstDir := testutil.TempDir(t)
	defer os.RemoveAll(dstDir)

	if err := testutil.WriteFiles(srcDir, map[string]string{
		"file1":         "first file",
		"dir/file2":     "second file",
		"dir/sub/file3": "third file",
	}); err != nil {
		t.Fatal(err)
	}

	if err := ssh.PutFiles(td.Ctx, td.Conn, map[string]string{
		filepath.Join(srcDir, "file1"): filepath.Join(dstDir, "renamed1"),
		filepath.Join(srcDir, "dir"):   filepath.Join(dstDir, "newdir"),
	}); err != nil {
		t.Fatal("PutFiles failed: ", err)
	}

	got, err := testutil.ReadFiles(dstDir)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"renamed1":         "first file",
		"newdir/file2":     "second file",
		"newdir/sub/file3": "third file",
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Copied files mismatch (-got +want):\n%s", diff)
	}
}

func TestPutFilesRelativeDest(t *testing.T) {
	td := test.NewTestDataConn(t)
	defer td.Close()

	srcDir := testutil.TempDir(t)
	defer os.RemoveAll(srcDir)
	if err := testutil.WriteFiles(srcDir, map[string]string{"f": "data"}); err != nil {
		t.Fatal(err)
	}

	if err := ssh.PutFiles(td.Ctx, td.Conn, map[string]string{
		filepath.Join(srcDir, "f"): "relative/dest",
	}); err == nil {
		t.Error("PutFiles with a relative destination unexpectedly succeeded")
	}
}
