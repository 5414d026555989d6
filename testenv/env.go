// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package testenv provides isolated environments for running compiler
// toolchain commands during bisection.
//
// An Env is a scratch directory plus a way to run commands whose compiled-code
// caches are emptied before every run. Host runs commands directly on this
// machine against an Android build tree; Device mirrors the scratch directory
// to an attached device through a Transport and runs commands there.
// Both keep a transcript of every command in a host-side log file.
package testenv

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Env is the capability surface shared by host and device environments.
type Env interface {
	// CreateFile creates an empty file in the environment's scratch
	// directory and returns its environment-specific path. If name is
	// empty a unique name is generated.
	CreateFile(ctx context.Context, name string) (string, error)

	// WriteLines writes lines to the file at path, terminating each with a
	// newline. The file is created if needed and overwritten otherwise.
	// path must be an environment-specific path, e.g. one returned by
	// CreateFile.
	WriteLines(ctx context.Context, path string, lines []string) error

	// RunCommand empties the compiled-code caches, then runs args in the
	// environment with envUpdates overlaid on the environment's bindings.
	// It returns the combined output and exit code. A non-zero exit is not
	// an error. A timed-out command returns its partial output with code 1.
	RunCommand(ctx context.Context, args []string, envUpdates map[string]string) (string, int, error)

	// Logfile returns the host-side transcript file.
	Logfile() *os.File
}

// Transport moves files to a remote device and runs shell commands there.
// Implementations are in the ssh and adb packages.
type Transport interface {
	// MkdirAll creates path and any missing parents on the device.
	MkdirAll(ctx context.Context, path string) error

	// Push copies the local file at localPath to remotePath on the device.
	Push(ctx context.Context, localPath, remotePath string) error

	// PushAll copies multiple files; keys are local paths, values are
	// remote destinations.
	PushAll(ctx context.Context, files map[string]string) error

	// Shell runs cmdline with the device's shell and returns its combined
	// output and exit code. It honors ctx cancellation, returning whatever
	// output was collected along with a non-nil error.
	Shell(ctx context.Context, cmdline string) ([]byte, int, error)

	// Close releases the transport's connection.
	Close(ctx context.Context) error
}

// ConfigError reports a missing environment variable required to construct
// an environment. It is returned before any side effect has happened.
type ConfigError struct {
	// Variable is the name of the missing variable.
	Variable string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("required environment variable %s is not set", e.Variable)
}

// lookupEnviron finds name in an environ-style slice ("KEY=value").
// The last occurrence wins, matching os/exec behavior.
func lookupEnviron(environ []string, name string) (string, bool) {
	val, found := "", false
	prefix := name + "="
	for _, kv := range environ {
		if strings.HasPrefix(kv, prefix) {
			val, found = kv[len(prefix):], true
		}
	}
	return val, found
}

// overlayEnviron returns base with the updates applied. Existing variables
// are replaced in place; new ones are appended in sorted key order so the
// result is deterministic.
func overlayEnviron(base []string, updates map[string]string) []string {
	env := make([]string, 0, len(base)+len(updates))
	seen := make(map[string]bool)
	for _, kv := range base {
		name := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			name = kv[:i]
		}
		if val, ok := updates[name]; ok {
			if !seen[name] {
				env = append(env, name+"="+val)
				seen[name] = true
			}
			continue
		}
		env = append(env, kv)
	}
	for _, name := range sortedKeys(updates) {
		if !seen[name] {
			env = append(env, name+"="+updates[name])
		}
	}
	return env
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
