// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config holds tunable settings for test environments.
//
// Default returns the values matching stock Android builds. A YAML file can
// overlay them for nonstandard devices, e.g. an extra architecture or a
// relocated temp directory.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/dexbisect/bisectenv/errors"
)

// Duration is a time.Duration that unmarshals from YAML strings like "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "bad duration %q", s)
	}
	*d = Duration(td)
	return nil
}

// Config describes a test environment's layout and command handling.
type Config struct {
	// Arches lists the architectures with compiled-code cache directories.
	Arches []string `yaml:"arches"`
	// RemoteTmpDir is the directory on the device under which remote
	// environments create their scratch directories.
	RemoteTmpDir string `yaml:"remote_tmp_dir"`
	// DiagTags are the log tags whose messages are collected to stderr
	// after each remote command.
	DiagTags []string `yaml:"diag_tags"`
	// DiagSeparator is a regexp matching separator lines to strip from the
	// collected diagnostic log.
	DiagSeparator string `yaml:"diag_separator"`
	// CommandTimeout bounds a single command run.
	CommandTimeout Duration `yaml:"command_timeout"`
}

// Default returns the configuration for stock Android builds.
func Default() *Config {
	return &Config{
		Arches:         []string{"arm", "arm64", "x86", "x86_64"},
		RemoteTmpDir:   "/data/local/tmp",
		DiagTags:       []string{"dex2oat:*", "dex2oatd:*"},
		DiagSeparator:  "^---------",
		CommandTimeout: Duration(60 * time.Second),
	}
}

// Load reads a YAML file and overlays it on the defaults. Fields absent from
// the file keep their default values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	cfg := Default()
	if err := yaml.UnmarshalStrict(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}
