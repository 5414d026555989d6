// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package test

import (
	"context"
	"crypto/rsa"
	"os"
	"testing"

	"github.com/dexbisect/bisectenv/ssh"
)

// ConnectToServer establishes a connection to srv using key.
// base is used as a base set of options.
func ConnectToServer(ctx context.Context, srv *SSHServer, key *rsa.PrivateKey, base *ssh.Options) (*ssh.Conn, error) {
	keyFile, err := WriteKey(key)
	if err != nil {
		return nil, err
	}
	defer os.Remove(keyFile)

	o := *base
	o.KeyFile = keyFile
	if err = ssh.ParseTarget(srv.Addr().String(), &o); err != nil {
		return nil, err
	}
	return ssh.New(ctx, &o)
}

// TestDataConn bundles a local SSH server and a connection to it.
type TestDataConn struct {
	// Srv is the local SSH server.
	Srv *SSHServer
	// Conn is a connection to Srv.
	Conn *ssh.Conn

	// Ctx is used for performing operations using Conn.
	Ctx context.Context
	// Cancel cancels Ctx to simulate a timeout.
	Cancel func()
}

// NewTestDataConn sets up a local SSH server running real commands and a
// connection to it. Caller must call Close after use.
func NewTestDataConn(t *testing.T) *TestDataConn {
	td := &TestDataConn{}
	td.Ctx, td.Cancel = context.WithCancel(context.Background())

	userKey, hostKey := StaticKeys()

	var err error
	if td.Srv, err = NewSSHServer(&userKey.PublicKey, hostKey, func(req *ExecReq) {
		req.Start(true)
		req.End(req.RunRealCmd())
	}); err != nil {
		t.Fatal(err)
	}

	if td.Conn, err = ConnectToServer(td.Ctx, td.Srv, userKey, &ssh.Options{}); err != nil {
		td.Srv.Close()
		t.Fatal(err)
	}

	return td
}

// Close releases resources associated with td.
func (td *TestDataConn) Close() {
	td.Srv.Close()
	td.Conn.Close(td.Ctx)
	td.Cancel()
}
