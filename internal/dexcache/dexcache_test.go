// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dexcache_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dexbisect/bisectenv/internal/dexcache"
	"github.com/dexbisect/bisectenv/testutil"
)

var testArches = []string{"arm", "arm64", "x86", "x86_64"}

func TestArchDirs(t *testing.T) {
	got := dexcache.ArchDirs("/root", []string{"arm", "x86"})
	want := []string{"/root/dalvik-cache/arm", "/root/dalvik-cache/x86"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("ArchDirs mismatch (-got +want):\n%s", diff)
	}
}

func TestCreateAll(t *testing.T) {
	td := testutil.TempDir(t)
	defer os.RemoveAll(td)

	if err := dexcache.CreateAll(td, testArches); err != nil {
		t.Fatal("CreateAll failed: ", err)
	}
	for _, dir := range dexcache.ArchDirs(td, testArches) {
		fi, err := os.Stat(dir)
		if err != nil {
			t.Errorf("Missing cache dir %s: %v", dir, err)
		} else if !fi.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestClear(t *testing.T) {
	td := testutil.TempDir(t)
	defer os.RemoveAll(td)

	if err := dexcache.CreateAll(td, testArches); err != nil {
		t.Fatal("CreateAll failed: ", err)
	}
	armDir := filepath.Join(td, "dalvik-cache", "arm")
	if err := testutil.WriteFiles(armDir, map[string]string{
		"system@app@boot.art": "art",
		"classes.dex":         "dex",
	}); err != nil {
		t.Fatal("WriteFiles failed: ", err)
	}
	// Subdirectories must survive a clear.
	keepDir := filepath.Join(armDir, "keep")
	if err := os.Mkdir(keepDir, 0755); err != nil {
		t.Fatal(err)
	}

	if err := dexcache.Clear(td, testArches); err != nil {
		t.Fatal("Clear failed: ", err)
	}

	ents, err := os.ReadDir(armDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ents) != 1 || !ents[0].IsDir() || ents[0].Name() != "keep" {
		t.Errorf("Clear left unexpected entries in %s: %v", armDir, ents)
	}
}

func TestClearMissingDir(t *testing.T) {
	td := testutil.TempDir(t)
	defer os.RemoveAll(td)

	if err := dexcache.Clear(td, testArches); err == nil {
		t.Error("Clear unexpectedly succeeded for missing cache dirs")
	}
}

func TestRemoteClearCmd(t *testing.T) {
	cmd := dexcache.RemoteClearCmd("/data/local/tmp/bisection_search_x", []string{"arm", "arm64"})
	want := `if [ -d "/data/local/tmp/bisection_search_x/dalvik-cache/arm" ]; then rm -f "/data/local/tmp/bisection_search_x/dalvik-cache/arm"/*; fi` +
		` && ` +
		`if [ -d "/data/local/tmp/bisection_search_x/dalvik-cache/arm64" ]; then rm -f "/data/local/tmp/bisection_search_x/dalvik-cache/arm64"/*; fi`
	if cmd != want {
		t.Errorf("RemoteClearCmd = %q; want %q", cmd, want)
	}
	for _, arch := range []string{"arm", "arm64"} {
		if !strings.Contains(cmd, "/dalvik-cache/"+arch+`"`) {
			t.Errorf("RemoteClearCmd does not cover arch %q", arch)
		}
	}
}
