// Copyright 2026 The bisectenv Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ssh

import (
	"bytes"
	"context"

	cryptossh "golang.org/x/crypto/ssh"

	"github.com/dexbisect/bisectenv/testenv"
)

// Transport adapts a Conn to the testenv.Transport interface.
type Transport struct {
	conn *Conn
}

var _ testenv.Transport = (*Transport)(nil)

// NewTransport wraps an established connection. The transport owns the
// connection; closing the transport closes it.
func NewTransport(conn *Conn) *Transport {
	return &Transport{conn: conn}
}

// MkdirAll creates path and any missing parents on the remote host.
func (t *Transport) MkdirAll(ctx context.Context, path string) error {
	return t.conn.Command("mkdir", "-p", path).Run(ctx)
}

// Push copies the local file at localPath to remotePath.
func (t *Transport) Push(ctx context.Context, localPath, remotePath string) error {
	return PutFile(ctx, t.conn, localPath, remotePath)
}

// PushAll copies multiple files in a single tar stream.
func (t *Transport) PushAll(ctx context.Context, files map[string]string) error {
	return PutFiles(ctx, t.conn, files)
}

// Shell runs cmdline with the remote user's shell and returns its combined
// output and exit code. A non-zero exit is not an error.
func (t *Transport) Shell(ctx context.Context, cmdline string) ([]byte, int, error) {
	var buf bytes.Buffer
	cmd := t.conn.ShellCommand(cmdline)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run(ctx)
	if err != nil {
		if exitErr, ok := err.(*cryptossh.ExitError); ok {
			return buf.Bytes(), exitErr.ExitStatus(), nil
		}
		return buf.Bytes(), 0, err
	}
	return buf.Bytes(), 0, nil
}

// Close closes the underlying connection.
func (t *Transport) Close(ctx context.Context) error {
	return t.conn.Close(ctx)
}
