// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestMaxTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), MaxTimeout)
	defer cancel()

	dl, ok := ctx.Deadline()
	if !ok {
		t.Fatal("Context has no deadline")
	}
	if farFuture := time.Now().Add(100 * 365 * 24 * time.Hour); dl.Before(farFuture) {
		t.Errorf("Deadline %v is before %v", dl, farFuture)
	}
}
