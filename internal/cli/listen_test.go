package cli

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startListen runs listen in the background and returns its output and
// a stop function.
func startListen(t *testing.T, environ map[string]string, args ...string) (*syncBuffer, func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	errCh := make(chan error, 1)
	go func() {
		_, err := executeContext(t, ctx, environ, out, append([]string{"listen"}, args...)...)
		errCh <- err
	}()
	stop := func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("listen did not stop")
			return nil
		}
	}
	return out, stop
}

// send dials addr until the listener is up and writes payload.
func send(t *testing.T, addr, payload string) {
	t.Helper()
	var conn net.Conn
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 5*time.Second, 20*time.Millisecond)
	defer conn.Close()
	_, err := conn.Write([]byte(payload))
	require.NoError(t, err)
}

func TestListenExecutesMoves(t *testing.T) {
	fb := &fakeBoard{}
	boardSrv := httptest.NewServer(fb)
	defer boardSrv.Close()

	addr := freeAddr(t)
	out, stop := startListen(t, map[string]string{"CHESS_SERVER_URL": boardSrv.URL}, "--addr", addr)

	send(t, addr, "move_white_knight_from_b1_to_c3\n")
	require.Eventually(t, func() bool { return len(fb.sent()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"move_white_knight_from_b1_to_c3"}, fb.sent())
	require.Eventually(t, func() bool {
		return out.String() == "move_white_knight_from_b1_to_c3\n"
	}, 5*time.Second, 10*time.Millisecond)

	send(t, addr, `{"command":"move black pawn from e7 to e5","vars":{"color":"black","piece":"pawn","location1":"E7","location2":"E5"}}`+"\n")
	require.Eventually(t, func() bool { return len(fb.sent()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "move_black_pawn_from_e7_to_e5", fb.sent()[1])

	require.NoError(t, stop())
}

func TestListenEchoOnly(t *testing.T) {
	fb := &fakeBoard{}
	boardSrv := httptest.NewServer(fb)
	defer boardSrv.Close()

	addr := freeAddr(t)
	out, stop := startListen(t, map[string]string{"CHESS_SERVER_URL": boardSrv.URL}, "--addr", addr, "--echo-only")

	send(t, addr, "move_white_knight_from_b1_to_c3\n")
	require.Eventually(t, func() bool {
		return out.String() == "move_white_knight_from_b1_to_c3\n"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, fb.sent())

	require.NoError(t, stop())
}

func TestListenInvalidEncoding(t *testing.T) {
	out, err := execute(t, map[string]string{"TCP_CLIENT_ENCODING": "klingon"}, "listen", "--addr", freeAddr(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "invalid listener config")
}
