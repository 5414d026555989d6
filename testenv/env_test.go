// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testenv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLookupEnviron(t *testing.T) {
	environ := []string{"A=1", "B=2", "A=3"}

	for _, tc := range []struct {
		name  string
		want  string
		found bool
	}{
		{"A", "3", true}, // last occurrence wins
		{"B", "2", true},
		{"C", "", false},
	} {
		if val, ok := lookupEnviron(environ, tc.name); val != tc.want || ok != tc.found {
			t.Errorf("lookupEnviron(%q) = (%q, %v); want (%q, %v)", tc.name, val, ok, tc.want, tc.found)
		}
	}
}

func TestOverlayEnviron(t *testing.T) {
	base := []string{"PATH=/bin", "HOME=/home/u", "PATH=/sbin"}
	got := overlayEnviron(base, map[string]string{
		"PATH": "/new",
		"ZED":  "z",
		"ABC":  "a",
	})
	want := []string{"PATH=/new", "HOME=/home/u", "ABC=a", "ZED=z"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("overlayEnviron mismatch (-got +want):\n%s", diff)
	}
}

func TestOverlayEnvironNoUpdates(t *testing.T) {
	base := []string{"A=1"}
	got := overlayEnviron(base, nil)
	if diff := cmp.Diff(got, base); diff != "" {
		t.Errorf("overlayEnviron mismatch (-got +want):\n%s", diff)
	}
}

func TestJoinLines(t *testing.T) {
	for _, tc := range []struct {
		lines []string
		want  string
	}{
		{nil, ""},
		{[]string{"a"}, "a\n"},
		{[]string{"a", "b", ""}, "a\nb\n\n"},
	} {
		if got := joinLines(tc.lines); got != tc.want {
			t.Errorf("joinLines(%q) = %q; want %q", tc.lines, got, tc.want)
		}
	}
}
