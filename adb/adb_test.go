// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package adb

import "testing"

func TestSplitExitMarker(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		out  string
		code int
	}{
		{"hello\n" + exitMarker + "0\n", "hello\n", 0},
		{"partial output\n" + exitMarker + "5\n", "partial output\n", 5},
		{exitMarker + "127\n", "", 127},
		// Output not ending with a newline runs into the marker line.
		{"no newline" + exitMarker + "1", "no newline", 1},
	} {
		out, code, err := splitExitMarker(tc.raw)
		if err != nil {
			t.Errorf("splitExitMarker(%q) failed: %v", tc.raw, err)
			continue
		}
		if out != tc.out || code != tc.code {
			t.Errorf("splitExitMarker(%q) = (%q, %d); want (%q, %d)",
				tc.raw, out, code, tc.out, tc.code)
		}
	}
}

func TestSplitExitMarkerBad(t *testing.T) {
	for _, raw := range []string{
		"",
		"output with no marker\n",
		exitMarker + "not-a-number\n",
	} {
		if _, _, err := splitExitMarker(raw); err == nil {
			t.Errorf("splitExitMarker(%q) unexpectedly succeeded", raw)
		}
	}
}
