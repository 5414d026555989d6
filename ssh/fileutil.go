// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dexbisect/bisectenv/errors"
	"github.com/dexbisect/bisectenv/shutil"
)

// PutFile copies the local file at localPath to remotePath on the host.
// The destination is created or truncated; its parent directory must exist.
func PutFile(ctx context.Context, s *Conn, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", localPath)
	}
	defer f.Close()

	cmd := s.ShellCommand("cat > " + shutil.Escape(remotePath))
	cmd.Stdin = f
	if err := cmd.Run(ctx); err != nil {
		return errors.Wrapf(err, "failed to write %s", remotePath)
	}
	return nil
}

// PutFiles copies files on the local machine to the host. files describes
// a mapping from a local file path to a remote file path. For example, the call:
//
//	PutFiles(ctx, conn, map[string]string{"/src/from": "/dst/to"})
//
// will copy the local file or directory /src/from to /dst/to on the remote host.
// Local file paths can be absolute or relative. Remote file paths must be absolute.
// The files are sent as a single compressed tar stream.
func PutFiles(ctx context.Context, s *Conn, files map[string]string) error {
	af := make(map[string]string, len(files))
	for src, dst := range files {
		if !filepath.IsAbs(src) {
			p, err := filepath.Abs(src)
			if err != nil {
				return errors.Errorf("source path %q could not be resolved", src)
			}
			src = p
		}
		if !filepath.IsAbs(dst) {
			return errors.Errorf("destination path %q should be absolute", dst)
		}
		af[src] = dst
	}
	if len(af) == 0 {
		return nil
	}

	args := []string{"-c", "--gzip", "-C", "/"}
	for l, r := range af {
		args = append(args, tarTransformFlag(strings.TrimPrefix(l, "/"), strings.TrimPrefix(r, "/")))
	}
	for l := range af {
		args = append(args, strings.TrimPrefix(l, "/"))
	}

	pr, pw := io.Pipe()
	cmd := exec.CommandContext(ctx, "/bin/tar", args...)
	cmd.Stdout = pw

	rcmd := s.Command("tar", "-x", "--gzip", "--no-same-owner", "--recursive-unlink", "-p", "-C", "/")
	rcmd.Stdin = pr

	var g errgroup.Group
	g.Go(func() error {
		err := cmd.Run()
		pw.CloseWithError(err)
		if err != nil {
			return errors.Wrap(err, "local tar failed")
		}
		return nil
	})
	g.Go(func() error {
		err := rcmd.Run(ctx)
		pr.CloseWithError(err)
		if err != nil {
			return errors.Wrap(err, "remote tar failed")
		}
		return nil
	})
	return g.Wait()
}

// tarTransformFlag returns a GNU tar --transform flag for renaming path s to d when
// creating an archive.
func tarTransformFlag(s, d string) string {
	esc := func(s string, bad []string) string {
		for _, b := range bad {
			s = strings.Replace(s, b, "\\"+b, -1)
		}
		return s
	}
	// Transform foo -> bar but not foobar -> barbar. Therefore match foo$ or foo/
	return fmt.Sprintf(`--transform=s,^%s\($\|/\),%s,`,
		esc(regexp.QuoteMeta(s), []string{","}),
		esc(d, []string{"\\", ",", "&"}))
}
