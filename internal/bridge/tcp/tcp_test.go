package tcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omnilink/internal/board"
	"github.com/roach88/omnilink/internal/engine"
	"github.com/roach88/omnilink/internal/ir"
	"github.com/roach88/omnilink/internal/testutil"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

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

type fakeMover struct {
	mu    sync.Mutex
	moves []board.Move
	fail  map[string]bool
}

func (m *fakeMover) MovePiece(_ context.Context, mv board.Move) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[mv.Piece] {
		return errors.New("rejected")
	}
	m.moves = append(m.moves, mv)
	return nil
}

func (m *fakeMover) got() []board.Move {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]board.Move(nil), m.moves...)
}

func TestPayloadFromEvent(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := PayloadFromEvent(ir.Event{
		Command:   "move white pawn from e2 to e4",
		Text:      "move_white_pawn_from_e2_to_e4",
		Template:  "move [color] [piece] from [location1] to [location2]",
		Vars:      ir.NewVars(ir.V("color", "white")),
		Meta:      ir.Meta{},
		Timestamp: ts,
	})
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"command": "move white pawn from e2 to e4",
		"template": "move [color] [piece] from [location1] to [location2]",
		"vars": {"color": "white"},
		"text": "move_white_pawn_from_e2_to_e4",
		"timestamp": "2024-01-01T00:00:00Z"
	}`, string(data))

	data, err = json.Marshal(PayloadFromEvent(ir.Event{Command: "hi", Timestamp: ts}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command": "hi", "timestamp": "2024-01-01T00:00:00Z"}`, string(data))
}

func TestListener_HandlePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		fail    map[string]bool
		want    []board.Move
		echo    string
	}{
		{
			name:    "vars",
			payload: `{"command": "move white knight from c2 to c3", "vars": {"color": "white", "piece": "knight", "location1": "C2", "location2": "c3"}}` + "\n",
			want:    []board.Move{{Color: "white", Piece: "knight", From: "c2", To: "c3"}},
		},
		{
			name:    "json command",
			payload: `{"command": "move_black_pawn_from_e7_to_e5"}`,
			want:    []board.Move{{Color: "black", Piece: "pawn", From: "e7", To: "e5"}},
		},
		{
			name:    "raw command",
			payload: "MOVE_white_rook_from_a1_to_a4\n",
			want:    []board.Move{{Color: "white", Piece: "rook", From: "a1", To: "a4"}},
			echo:    "MOVE_white_rook_from_a1_to_a4\n",
		},
		{
			name:    "vars fail falls back to command",
			payload: `{"command": "move_white_queen_from_d1_to_d2", "vars": {"color": "white", "piece": "wizard", "location1": "d1", "location2": "d2"}}`,
			fail:    map[string]bool{"wizard": true},
			want:    []board.Move{{Color: "white", Piece: "queen", From: "d1", To: "d2"}},
		},
		{
			name:    "no move",
			payload: "hello\n",
			echo:    "hello\n",
		},
		{
			name:    "blank",
			payload: "  \n",
			echo:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mover := &fakeMover{fail: tt.fail}
			out := &syncBuffer{}
			l, err := NewListener(ListenerConfig{Delimiter: `\n`}, mover, out, WithListenerLogger(quiet()))
			require.NoError(t, err)

			l.HandlePayload(context.Background(), []byte(tt.payload))

			assert.Equal(t, tt.want, mover.got())
			echo := tt.echo
			if echo == "" && strings.TrimSpace(tt.payload) != "" {
				echo = strings.TrimSpace(tt.payload) + "\n"
			}
			assert.Equal(t, echo, out.String())
		})
	}
}

func TestForwarderToListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	mover := &fakeMover{}
	out := &syncBuffer{}
	listener, err := NewListener(ListenerConfig{Delimiter: `\r\n`, Encoding: "latin1"}, mover, out, WithListenerLogger(quiet()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- listener.Serve(ctx, ln) }()

	fwd, err := NewForwarder(ForwarderConfig{
		Host: "127.0.0.1", Port: port, Delimiter: `\r\n`, Encoding: "latin1",
	}, WithLogger(quiet()))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(port), fwd.Addr())

	e, err := engine.New([]string{"move [color] [piece] from [location1] to [location2]"},
		engine.WithLogger(quiet()),
		engine.WithClock(testutil.NewFixedClock(testutil.DefaultEpoch, time.Second)))
	require.NoError(t, err)
	e.On(engine.Always{}, fwd)

	fwdDone := make(chan error, 1)
	go func() { fwdDone <- fwd.Run(ctx) }()

	res := e.Handle("move white knight from b1 to c3", ir.Meta{"source": "test"})
	assert.Equal(t, ir.Ack{Ack: true}, res.Result)
	res = e.Handle("café", nil)
	assert.Equal(t, ir.Ack{Ack: true}, res.Result)

	assert.Eventually(t, func() bool {
		return strings.Count(out.String(), "\n") == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []board.Move{{Color: "white", Piece: "knight", From: "b1", To: "c3"}}, mover.got())
	assert.Contains(t, out.String(), `"command":"café"`)
	assert.Contains(t, out.String(), `"meta":{"source":"test"}`)

	fwd.Close()
	require.NoError(t, <-fwdDone)

	res = e.Handle("move white knight from c3 to b1", nil)
	assert.Equal(t, ir.Ack{Ack: false, Error: "forwarder stopped"}, res.Result)

	cancel()
	assert.ErrorIs(t, <-serveDone, context.Canceled)
}

func TestForwarder_SendDialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	fwd, err := NewForwarder(ForwarderConfig{Host: "127.0.0.1", Port: port, Timeout: time.Second}, WithLogger(quiet()))
	require.NoError(t, err)

	err = fwd.Send(context.Background(), Payload{Command: "x"})
	assert.ErrorContains(t, err, "tcp send failed")
}

func TestForwarder_DeclinesEmptyCommand(t *testing.T) {
	fwd, err := NewForwarder(ForwarderConfig{}, WithLogger(quiet()))
	require.NoError(t, err)
	assert.Equal(t, "localhost:8766", fwd.Addr())

	res, err := fwd.Handle(ir.Event{})
	require.NoError(t, err)
	assert.Equal(t, ir.Ack{Ack: false}, res)
}

func TestListener_ReadToEOFWithoutDelimiter(t *testing.T) {
	l, err := NewListener(ListenerConfig{}, nil, &syncBuffer{}, WithListenerLogger(quiet()))
	require.NoError(t, err)

	data, err := l.read(strings.NewReader("line one\nline two"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", string(data))
}

func TestListener_ReadStopsAtDelimiter(t *testing.T) {
	l, err := NewListener(ListenerConfig{Delimiter: "\r\n"}, nil, &syncBuffer{}, WithListenerLogger(quiet()))
	require.NoError(t, err)

	data, err := l.read(strings.NewReader("a\nb\r\nrest"))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\r\n", string(data))
}
