// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dexbisect/bisectenv/config"
	"github.com/dexbisect/bisectenv/errors"
	"github.com/dexbisect/bisectenv/internal/dexcache"
	"github.com/dexbisect/bisectenv/internal/logging"
	"github.com/dexbisect/bisectenv/internal/runner"
	"github.com/dexbisect/bisectenv/shutil"
)

// DeviceOptions configures NewDevice.
type DeviceOptions struct {
	// Environ is the base process environment used for host-side staging.
	// If nil, os.Environ() is used.
	Environ []string
	// Config overrides config.Default().
	Config *config.Config
}

// Device mirrors a scratch directory to an attached device through a
// Transport and runs commands there. The transcript log stays on the host.
//
// After each command the device's diagnostic log buffer is dumped, filtered
// to the compiler tags, and redirected to the command's stderr so compiler
// diagnostics travel with the command output.
type Device struct {
	tr        Transport
	hostDir   string
	remoteDir string
	logfile   *os.File
	cfg       *config.Config
}

var _ Env = (*Device)(nil)

// NewDevice creates a device environment over tr. The remote scratch
// directory is <RemoteTmpDir>/<base of the host scratch dir>, and the
// per-architecture cache directories are created under it up front.
func NewDevice(ctx context.Context, tr Transport, opts *DeviceOptions) (*Device, error) {
	if opts == nil {
		opts = &DeviceOptions{}
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	hostDir, err := os.MkdirTemp(os.TempDir(), "bisection_search_")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scratch dir")
	}
	logfile, err := os.OpenFile(filepath.Join(hostDir, "log"), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create log file")
	}

	remoteDir := cfg.RemoteTmpDir + "/" + filepath.Base(hostDir)
	for _, dir := range dexcache.ArchDirs(remoteDir, cfg.Arches) {
		if err := tr.MkdirAll(ctx, dir); err != nil {
			return nil, errors.Wrapf(err, "failed to create remote cache dir %s", dir)
		}
	}

	logging.Infof(ctx, "Created device environment %s mirrored at %s", hostDir, remoteDir)
	return &Device{tr: tr, hostDir: hostDir, remoteDir: remoteDir, logfile: logfile, cfg: cfg}, nil
}

// CreateFile stages an empty local file and pushes it to the remote scratch
// directory, returning the device-side path.
func (d *Device) CreateFile(ctx context.Context, name string) (string, error) {
	f, err := os.CreateTemp(d.hostDir, "")
	if err != nil {
		return "", errors.Wrap(err, "failed to stage file")
	}
	f.Close()
	defer os.Remove(f.Name())

	if name == "" {
		name = filepath.Base(f.Name())
	}
	remote := d.remoteDir + "/" + name
	if err := d.tr.Push(ctx, f.Name(), remote); err != nil {
		return "", errors.Wrapf(err, "failed to push %s", remote)
	}
	return remote, nil
}

// WriteLines stages lines in a local temp file and pushes it over path.
func (d *Device) WriteLines(ctx context.Context, path string, lines []string) error {
	f, err := os.CreateTemp(d.hostDir, "")
	if err != nil {
		return errors.Wrap(err, "failed to stage file")
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(joinLines(lines)); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to stage file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "failed to stage file")
	}

	if err := d.tr.Push(ctx, f.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to push %s", path)
	}
	return nil
}

// RunCommand empties the remote caches and runs args on the device.
//
// ANDROID_DATA is pointed at the remote scratch directory unless the caller
// overrides it. Variable updates become inline assignments since the remote
// shell starts from the device's own environment.
func (d *Device) RunCommand(ctx context.Context, args []string, envUpdates map[string]string) (string, int, error) {
	if _, _, err := d.tr.Shell(ctx, dexcache.RemoteClearCmd(d.remoteDir, d.cfg.Arches)); err != nil {
		return "", 0, errors.Wrap(err, "failed to clear remote caches")
	}

	updates := make(map[string]string, len(envUpdates)+1)
	for k, v := range envUpdates {
		updates[k] = v
	}
	if _, ok := updates["ANDROID_DATA"]; !ok {
		updates["ANDROID_DATA"] = d.remoteDir
	}

	cmdline := d.compositeCmd(args, updates)
	logging.Debugf(ctx, "Device command: %s", cmdline)
	res, err := runner.Remote(ctx, d.tr.Shell, cmdline, d.logfile,
		time.Duration(d.cfg.CommandTimeout))
	if err != nil {
		return "", 0, err
	}
	return res.Output, res.Code, nil
}

// compositeCmd builds the full remote command line: clear the diagnostic log
// buffer, run the command with inline variable assignments, then dump the
// filtered diagnostics to stderr. The dump runs even if the command fails.
func (d *Device) compositeCmd(args []string, updates map[string]string) string {
	assigns := make([]string, 0, len(updates))
	for _, name := range sortedKeys(updates) {
		assigns = append(assigns, name+"="+updates[name])
	}
	inner := shutil.QuoteSlice(args)
	if len(assigns) > 0 {
		inner = strings.Join(assigns, " ") + " " + inner
	}
	return fmt.Sprintf("logcat -c && %s ; logcat -d -s %s | grep -v %q 1>&2",
		inner, strings.Join(d.cfg.DiagTags, " "), d.cfg.DiagSeparator)
}

// PushClasspath pushes every colon-separated entry of classpath to the
// remote scratch directory and returns the equivalent device-side classpath.
func (d *Device) PushClasspath(ctx context.Context, classpath string) (string, error) {
	paths := strings.Split(classpath, ":")
	files := make(map[string]string, len(paths))
	remotePaths := make([]string, len(paths))
	for i, p := range paths {
		remote := d.remoteDir + "/" + filepath.Base(p)
		files[p] = remote
		remotePaths[i] = remote
	}
	if err := d.tr.PushAll(ctx, files); err != nil {
		return "", errors.Wrap(err, "failed to push classpath")
	}
	return strings.Join(remotePaths, ":"), nil
}

// Logfile returns the transcript file.
func (d *Device) Logfile() *os.File { return d.logfile }

// RemoteDir returns the device-side scratch directory path.
func (d *Device) RemoteDir() string { return d.remoteDir }

// Close releases the transport and closes the transcript file. Scratch
// directories on both sides are left in place.
func (d *Device) Close(ctx context.Context) error {
	var firstErr error
	if err := d.tr.Close(ctx); err != nil {
		firstErr = err
	}
	if err := d.logfile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
