// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testenv

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dexbisect/bisectenv/config"
	"github.com/dexbisect/bisectenv/errors"
	"github.com/dexbisect/bisectenv/fsutil"
	"github.com/dexbisect/bisectenv/internal/dexcache"
	"github.com/dexbisect/bisectenv/internal/logging"
	"github.com/dexbisect/bisectenv/internal/runner"
)

// HostOptions configures NewHost.
type HostOptions struct {
	// Lib64 selects <ANDROID_HOST_OUT>/lib64 instead of lib for the
	// runtime library path.
	Lib64 bool
	// Environ is the base process environment in "KEY=value" form.
	// If nil, os.Environ() is used.
	Environ []string
	// Config overrides config.Default().
	Config *config.Config
}

// Host runs toolchain commands directly on this machine against an Android
// build tree, inside a scratch directory under the system temp directory.
type Host struct {
	root    string
	logfile *os.File
	environ []string
	cfg     *config.Config
}

var _ Env = (*Host)(nil)

// NewHost creates a host environment. ANDROID_HOST_OUT must be present in
// the base environment; if it is not, a *ConfigError is returned before any
// directory is created.
//
// The scratch directory holds the transcript log and the per-architecture
// compiled-code cache directories. It is kept after Close so failed runs can
// be inspected.
func NewHost(ctx context.Context, opts *HostOptions) (*Host, error) {
	if opts == nil {
		opts = &HostOptions{}
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	hostOut, ok := lookupEnviron(environ, "ANDROID_HOST_OUT")
	if !ok {
		return nil, &ConfigError{Variable: "ANDROID_HOST_OUT"}
	}

	root, err := os.MkdirTemp(os.TempDir(), "bisection_search_")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scratch dir")
	}
	logfile, err := os.OpenFile(filepath.Join(root, "log"), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create log file")
	}
	if err := dexcache.CreateAll(root, cfg.Arches); err != nil {
		return nil, err
	}

	lib := "lib"
	if opts.Lib64 {
		lib = "lib64"
	}
	libraryPath := filepath.Join(hostOut, lib)
	binPath := filepath.Join(hostOut, "bin")
	basePath, _ := lookupEnviron(environ, "PATH")
	environ = overlayEnviron(environ, map[string]string{
		"ANDROID_DATA":      root,
		"ANDROID_ROOT":      hostOut,
		"LD_LIBRARY_PATH":   libraryPath,
		"DYLD_LIBRARY_PATH": libraryPath,
		"PATH":              binPath + ":" + basePath,
		// Using dlopen requires load bias on the host.
		"LD_USE_LOAD_BIAS": "1",
	})

	logging.Infof(ctx, "Created host environment at %s", root)
	return &Host{root: root, logfile: logfile, environ: environ, cfg: cfg}, nil
}

// CreateFile creates an empty file in the scratch directory.
func (h *Host) CreateFile(ctx context.Context, name string) (string, error) {
	var f *os.File
	var err error
	if name == "" {
		f, err = os.CreateTemp(h.root, "")
	} else {
		f, err = os.Create(filepath.Join(h.root, name))
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to create file")
	}
	defer f.Close()
	return f.Name(), nil
}

// WriteLines writes lines to path, each terminated with a newline.
// The content is staged in the scratch directory and moved into place so a
// running command never observes a partially written file.
func (h *Host) WriteLines(ctx context.Context, path string, lines []string) error {
	f, err := os.CreateTemp(h.root, "")
	if err != nil {
		return errors.Wrap(err, "failed to stage file")
	}
	if _, err := f.WriteString(joinLines(lines)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return errors.Wrap(err, "failed to stage file")
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return errors.Wrap(err, "failed to stage file")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return errors.Wrap(err, "failed to stage file")
	}
	if err := fsutil.MoveFile(f.Name(), path); err != nil {
		os.Remove(f.Name())
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// RunCommand empties the caches and runs args on the host.
func (h *Host) RunCommand(ctx context.Context, args []string, envUpdates map[string]string) (string, int, error) {
	if err := dexcache.Clear(h.root, h.cfg.Arches); err != nil {
		return "", 0, err
	}
	env := overlayEnviron(h.environ, envUpdates)
	res, err := runner.Local(ctx, args, env, h.logfile, time.Duration(h.cfg.CommandTimeout))
	if err != nil {
		return "", 0, err
	}
	return res.Output, res.Code, nil
}

// Logfile returns the transcript file.
func (h *Host) Logfile() *os.File { return h.logfile }

// Root returns the scratch directory path.
func (h *Host) Root() string { return h.root }

// Close closes the transcript file. The scratch directory is left in place.
func (h *Host) Close() error {
	return h.logfile.Close()
}

func joinLines(lines []string) string {
	var b []byte
	for _, line := range lines {
		b = append(b, line...)
		b = append(b, '\n')
	}
	return string(b)
}
