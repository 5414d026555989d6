// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package adb provides a transport for Android devices reached through an
// adb server.
package adb

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/electricbubble/gadb"

	"github.com/dexbisect/bisectenv/errors"
	"github.com/dexbisect/bisectenv/internal/testingutil"
	"github.com/dexbisect/bisectenv/testenv"
)

// exitMarker separates command output from the appended exit status echo.
const exitMarker = "+++exit:"

// Options configures a connection to an Android device.
type Options struct {
	// Serial selects the device to use. If empty, exactly one device must
	// be attached.
	Serial string

	// BootTimeout, if positive, is how long to wait for the device to
	// finish booting before returning from New.
	BootTimeout time.Duration
}

// Transport runs commands and copies files on an Android device through
// the local adb server. It implements testenv.Transport.
type Transport struct {
	dev gadb.Device
}

var _ testenv.Transport = (*Transport)(nil)

// New connects to the local adb server and resolves the device described
// by o. If o.BootTimeout is positive, it also waits for the device to
// report a completed boot.
func New(ctx context.Context, o *Options) (*Transport, error) {
	if o == nil {
		o = &Options{}
	}

	cl, err := gadb.NewClient()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to adb server")
	}
	devices, err := cl.DeviceList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list adb devices")
	}

	var dev *gadb.Device
	if o.Serial == "" {
		if len(devices) != 1 {
			return nil, errors.Errorf("need exactly one adb device when no serial is given; found %d", len(devices))
		}
		dev = &devices[0]
	} else {
		for i := range devices {
			if devices[i].Serial() == o.Serial {
				dev = &devices[i]
				break
			}
		}
		if dev == nil {
			return nil, errors.Errorf("adb device %q not found", o.Serial)
		}
	}

	t := &Transport{dev: *dev}
	if o.BootTimeout > 0 {
		if err := t.waitBooted(ctx, o.BootTimeout); err != nil {
			return nil, errors.Wrapf(err, "device %s did not finish booting", dev.Serial())
		}
	}
	return t, nil
}

// waitBooted polls sys.boot_completed until the device reports 1.
func (t *Transport) waitBooted(ctx context.Context, timeout time.Duration) error {
	return testingutil.Poll(ctx, func(ctx context.Context) error {
		out, err := runAsync(ctx, func() (string, error) {
			return t.dev.RunShellCommand("getprop", "sys.boot_completed")
		})
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) != "1" {
			return errors.New("device is still booting")
		}
		return nil
	}, &testingutil.PollOptions{Timeout: timeout})
}

// MkdirAll creates path and any missing parents on the device.
func (t *Transport) MkdirAll(ctx context.Context, path string) error {
	out, code, err := t.Shell(ctx, "mkdir -p "+path)
	if err != nil {
		return err
	}
	if code != 0 {
		return errors.Errorf("mkdir -p %s exited with %d: %s", path, code, strings.TrimSpace(string(out)))
	}
	return nil
}

// Push copies the local file at localPath to remotePath on the device.
func (t *Transport) Push(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", localPath)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", localPath)
	}

	if _, err := runAsync(ctx, func() (string, error) {
		return "", t.dev.Push(f, remotePath, fi.ModTime())
	}); err != nil {
		return errors.Wrapf(err, "failed to push %s", remotePath)
	}
	return nil
}

// PushAll copies multiple files, in deterministic order.
func (t *Transport) PushAll(ctx context.Context, files map[string]string) error {
	locals := make([]string, 0, len(files))
	for l := range files {
		locals = append(locals, l)
	}
	sort.Strings(locals)
	for _, l := range locals {
		if err := t.Push(ctx, l, files[l]); err != nil {
			return err
		}
	}
	return nil
}

// Shell runs cmdline with the device shell and returns its combined output
// and exit code. A non-zero exit is not an error.
//
// The adb shell service does not report exit codes, so the status is echoed
// after the command and parsed back out of the output.
func (t *Transport) Shell(ctx context.Context, cmdline string) ([]byte, int, error) {
	wrapped := cmdline + "; echo " + exitMarker + "$?"
	raw, err := runAsync(ctx, func() (string, error) {
		return t.dev.RunShellCommand(wrapped)
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "adb shell failed")
	}
	out, code, err := splitExitMarker(raw)
	if err != nil {
		return []byte(raw), 0, err
	}
	return []byte(out), code, nil
}

// splitExitMarker strips the trailing exit status echo from raw shell
// output and returns the remaining output and the parsed status.
func splitExitMarker(raw string) (out string, code int, err error) {
	i := strings.LastIndex(raw, exitMarker)
	if i < 0 {
		return "", 0, errors.Errorf("no exit status in shell output %q", raw)
	}
	codeStr := strings.TrimSpace(raw[i+len(exitMarker):])
	code, err = strconv.Atoi(codeStr)
	if err != nil {
		return "", 0, errors.Errorf("bad exit status %q in shell output", codeStr)
	}
	return raw[:i], code, nil
}

// Close releases the transport. The adb server holds no per-transport
// state, so this is a no-op.
func (t *Transport) Close(ctx context.Context) error {
	return nil
}

// runAsync runs f on a goroutine so a blocking gadb call cannot outlive ctx.
// If ctx expires first the call's eventual result is discarded.
func runAsync(ctx context.Context, f func() (string, error)) (string, error) {
	type result struct {
		out string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := f()
		ch <- result{out, err}
	}()
	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
