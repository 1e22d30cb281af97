package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omnilink/internal/ir"
)

func TestMove_Validate(t *testing.T) {
	assert.NoError(t, NewMove("White", "KNIGHT", "C2", "C3").Validate())

	err := NewMove("green", "knight", "c2", "c3").Validate()
	var ime *InvalidMoveError
	require.ErrorAs(t, err, &ime)
	assert.Equal(t, "color", ime.Field)
	assert.EqualError(t, err, `color must be one of [black white], got "green"`)

	err = NewMove("white", "dragon", "c2", "c3").Validate()
	require.ErrorAs(t, err, &ime)
	assert.Equal(t, "piece", ime.Field)

	assert.EqualError(t, NewMove("white", "pawn", "", "c3").Validate(), "from must not be empty")
}

func TestMove_Command(t *testing.T) {
	m := NewMove("White", "Knight", "C2", "C3")
	assert.Equal(t, "move_white_knight_from_C2_to_C3", m.Command())
	assert.Equal(t, "white knight from C2 to C3", m.String())
}

func TestMoveFromVars(t *testing.T) {
	vars := ir.NewVars(
		ir.V("color", "white"), ir.V("piece", "knight"),
		ir.V("location1", "c2"), ir.V("location2", "c3"),
	)
	m, ok := MoveFromVars(vars)
	require.True(t, ok)
	assert.Equal(t, Move{Color: "white", Piece: "knight", From: "c2", To: "c3"}, m)

	_, ok = MoveFromVars(ir.NewVars(ir.V("color", "white")))
	assert.False(t, ok)
}

func TestMoveFromMap(t *testing.T) {
	m, ok := MoveFromMap(map[string]any{
		"color": "Black", "piece": "PAWN", "location1": "E7", "location2": "e5",
	})
	require.True(t, ok)
	assert.Equal(t, Move{Color: "black", Piece: "pawn", From: "e7", To: "e5"}, m)

	_, ok = MoveFromMap(map[string]any{"color": "black", "piece": "pawn", "location1": "e7", "location2": ""})
	assert.False(t, ok)
	_, ok = MoveFromMap(map[string]any{"color": "black"})
	assert.False(t, ok)
}

func TestParseMoveCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Move
		ok   bool
	}{
		{"move_white_knight_from_c2_to_c3", Move{"white", "knight", "c2", "c3"}, true},
		{"MOVE_Black_Pawn_FROM_E7_TO_E5", Move{"black", "pawn", "e7", "e5"}, true},
		{"move_white_knight_to_c3", Move{}, false},
		{"jump_white_knight_from_c2_to_c3", Move{}, false},
		{"move__knight_from_c2_to_c3", Move{}, false},
		{"move white knight from c2 to c3", Move{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseMoveCommand(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
