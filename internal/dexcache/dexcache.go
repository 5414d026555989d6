// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package dexcache manages per-architecture compiled-code cache directories
// under an environment's data root.
//
// The runtime under test writes compiled artifacts to
// <root>/dalvik-cache/<arch>. Caches must be emptied before every command so
// that each run recompiles from scratch; stale artifacts would mask the
// behavior being probed.
package dexcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dexbisect/bisectenv/errors"
)

// ArchDirs returns the cache directory paths for the given architectures,
// one per arch, in order.
func ArchDirs(root string, arches []string) []string {
	dirs := make([]string, len(arches))
	for i, arch := range arches {
		dirs[i] = filepath.Join(root, "dalvik-cache", arch)
	}
	return dirs
}

// CreateAll creates the dalvik-cache directory and all per-architecture
// subdirectories under root.
func CreateAll(root string, arches []string) error {
	if err := os.Mkdir(filepath.Join(root, "dalvik-cache"), 0755); err != nil {
		return errors.Wrap(err, "failed to create cache root")
	}
	for _, dir := range ArchDirs(root, arches) {
		if err := os.Mkdir(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create cache dir %s", dir)
		}
	}
	return nil
}

// Clear removes regular files directly inside each per-architecture cache
// directory. Subdirectories are left in place. The cache directories must
// exist; CreateAll is expected to have run at environment construction.
func Clear(root string, arches []string) error {
	for _, dir := range ArchDirs(root, arches) {
		ents, err := os.ReadDir(dir)
		if err != nil {
			return errors.Wrapf(err, "failed to list cache dir %s", dir)
		}
		for _, ent := range ents {
			if ent.IsDir() {
				continue
			}
			p := filepath.Join(dir, ent.Name())
			if err := os.Remove(p); err != nil {
				return errors.Wrapf(err, "failed to remove cached file %s", p)
			}
		}
	}
	return nil
}

// RemoteClearCmd returns a shell command that empties every per-architecture
// cache directory under root on a remote device. Each directory is guarded
// with an existence check so the command succeeds even if a directory was
// removed out from under us.
func RemoteClearCmd(root string, arches []string) string {
	frags := make([]string, len(arches))
	for i, arch := range arches {
		dir := root + "/dalvik-cache/" + arch
		frags[i] = fmt.Sprintf(`if [ -d "%s" ]; then rm -f "%s"/*; fi`, dir, dir)
	}
	return strings.Join(frags, " && ")
}
