// Package board is the chess board controller client: it issues piece
// moves, describes the board for context pushes, and provides the engine
// handler that turns matched move commands into queued moves.
package board

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/omnilink/internal/ir"
)

var (
	colors = map[string]bool{"white": true, "black": true}
	pieces = map[string]bool{
		"pawn": true, "rook": true, "knight": true,
		"bishop": true, "queen": true, "king": true,
	}
)

// Move is one piece move. Color and Piece are lower case; squares keep
// the case they were given in.
type Move struct {
	Color string `json:"color"`
	Piece string `json:"piece"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// NewMove lower-cases color and piece.
func NewMove(color, piece, from, to string) Move {
	return Move{
		Color: strings.ToLower(color),
		Piece: strings.ToLower(piece),
		From:  from,
		To:    to,
	}
}

// InvalidMoveError reports a move the board would reject.
type InvalidMoveError struct {
	Field string
	Value string
	Want  []string
}

func (e *InvalidMoveError) Error() string {
	if len(e.Want) == 0 {
		return fmt.Sprintf("%s must not be empty", e.Field)
	}
	return fmt.Sprintf("%s must be one of %v, got %q", e.Field, e.Want, e.Value)
}

// Validate checks color and piece against the known sets.
func (m Move) Validate() error {
	if !colors[m.Color] {
		return &InvalidMoveError{Field: "color", Value: m.Color, Want: slices.Sorted(maps.Keys(colors))}
	}
	if !pieces[m.Piece] {
		return &InvalidMoveError{Field: "piece", Value: m.Piece, Want: slices.Sorted(maps.Keys(pieces))}
	}
	if m.From == "" {
		return &InvalidMoveError{Field: "from"}
	}
	if m.To == "" {
		return &InvalidMoveError{Field: "to"}
	}
	return nil
}

// Command renders the board's command string,
// e.g. move_white_knight_from_c2_to_c3.
func (m Move) Command() string {
	return fmt.Sprintf("move_%s_%s_from_%s_to_%s", m.Color, m.Piece, m.From, m.To)
}

func (m Move) String() string {
	return fmt.Sprintf("%s %s from %s to %s", m.Color, m.Piece, m.From, m.To)
}

// MoveFromVars reads color, piece, location1 and location2. It reports
// false when any of them is missing.
func MoveFromVars(vars ir.Vars) (Move, bool) {
	var parts [4]string
	for i, name := range []string{"color", "piece", "location1", "location2"} {
		s, ok := vars.String(name)
		if !ok {
			return Move{}, false
		}
		parts[i] = s
	}
	return NewMove(parts[0], parts[1], parts[2], parts[3]), true
}

// MoveFromMap is MoveFromVars for decoded JSON objects. All four values
// must be present and non-empty; squares are lower-cased.
func MoveFromMap(m map[string]any) (Move, bool) {
	var parts [4]string
	for i, name := range []string{"color", "piece", "location1", "location2"} {
		v, ok := m[name]
		if !ok || v == nil {
			return Move{}, false
		}
		s := strings.ToLower(fmt.Sprint(v))
		if s == "" {
			return Move{}, false
		}
		parts[i] = s
	}
	return Move{Color: parts[0], Piece: parts[1], From: parts[2], To: parts[3]}, true
}

// ParseMoveCommand parses move_<color>_<piece>_from_<sq>_to_<sq>,
// ignoring case. The result is lower case.
func ParseMoveCommand(s string) (Move, bool) {
	parts := strings.Split(strings.ToLower(s), "_")
	if len(parts) != 7 || parts[0] != "move" || parts[3] != "from" || parts[5] != "to" {
		return Move{}, false
	}
	for _, p := range []string{parts[1], parts[2], parts[4], parts[6]} {
		if p == "" {
			return Move{}, false
		}
	}
	return Move{Color: parts[1], Piece: parts[2], From: parts[4], To: parts[6]}, true
}
