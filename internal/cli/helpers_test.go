package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args against an empty environment
// and returns stdout.
func execute(t *testing.T, environ map[string]string, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), environ, &bytes.Buffer{}, args...)
}

func executeContext(t *testing.T, ctx context.Context, environ map[string]string, out io.Writer, args ...string) (string, error) {
	t.Helper()
	if environ == nil {
		environ = map[string]string{}
	}
	cmd := newRootCommand(&RootOptions{Environ: environ})
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if buf, ok := out.(*bytes.Buffer); ok {
		return buf.String(), err
	}
	return "", err
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func testdata(name string) string {
	return filepath.Join("testdata", name)
}

// freeAddr reserves a loopback port and releases it for the command
// under test.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a
// polling test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeBoard records the commands posted to the board controller.
type fakeBoard struct {
	mu       sync.Mutex
	commands []string
}

func (b *fakeBoard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/":
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.commands = append(b.commands, body["cmd"])
		b.mu.Unlock()
	case r.Method == http.MethodGet && r.URL.Path == "/context":
		_, _ = io.WriteString(w, "board ready")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *fakeBoard) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.commands...)
}
