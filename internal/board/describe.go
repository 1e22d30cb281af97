package board

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Summary keys dropped from full context descriptions.
var excludedContextKeys = map[string]bool{
	"Last move":            true,
	"Last command":         true,
	"Last invalid command": true,
	"FEN":                  true,
}

var pluralNames = map[string]string{
	"pawn":   "pawns",
	"rook":   "rooks",
	"knight": "knights",
	"bishop": "bishops",
	"queen":  "queens",
	"king":   "kings",
}

func describeContext(body []byte, full bool) string {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return strings.TrimSpace(string(body))
	}

	obj, ok := data.(map[string]any)
	if !ok {
		return stringify(data)
	}
	if !full {
		for _, key := range []string{"context", "status", "data"} {
			if v, ok := obj[key]; ok {
				return stringify(v)
			}
		}
		return stringify(data)
	}

	state, _ := obj["state"].(map[string]any)
	pieceList, ok := state["pieces"].([]any)
	if !ok {
		return stringify(data)
	}

	description := describePieces(pieceList)
	summary := obj["context"]
	if m, ok := summary.(map[string]any); ok {
		maps.DeleteFunc(m, func(k string, _ any) bool { return excludedContextKeys[k] })
	}
	if truthy(summary) {
		s := stringify(summary)
		if description != "" {
			return s + "\n" + description
		}
		return s
	}
	if description != "" {
		return description
	}
	return stringify(pieceList)
}

// describePieces renders one line per color, e.g.
// "White pieces: king on e1; knights on b1 and g1".
func describePieces(list []any) string {
	var lines []string
	for _, color := range slices.Sorted(maps.Keys(colors)) {
		grouped := map[string][]string{}
		for _, item := range list {
			p, ok := item.(map[string]any)
			if !ok || p["color"] != color {
				continue
			}
			kind, _ := p["piece"].(string)
			if kind == "" {
				kind, _ = p["type"].(string)
			}
			square, _ := p["square"].(string)
			if kind == "" || square == "" {
				continue
			}
			grouped[kind] = append(grouped[kind], square)
		}
		if len(grouped) == 0 {
			continue
		}

		var parts []string
		for _, kind := range slices.Sorted(maps.Keys(grouped)) {
			squares := grouped[kind]
			sort.SliceStable(squares, func(i, j int) bool {
				return squareOrder(squares[i]) < squareOrder(squares[j])
			})
			name := kind
			if len(squares) > 1 {
				name = plural(kind)
			}
			parts = append(parts, name+" on "+joinLocations(squares))
		}
		lines = append(lines, fmt.Sprintf("%s pieces: %s", strings.ToUpper(color[:1])+color[1:], strings.Join(parts, "; ")))
	}
	return strings.Join(lines, "\n")
}

func plural(kind string) string {
	if p, ok := pluralNames[kind]; ok {
		return p
	}
	return kind + "s"
}

// squareOrder orders squares a1, b1, ... h8. Malformed squares sort first.
func squareOrder(square string) int {
	file := -1
	if square != "" && square[0] >= 'a' && square[0] <= 'h' {
		file = int(square[0] - 'a')
	}
	rank := -1
	if len(square) > 1 {
		if n, err := strconv.Atoi(square[1:]); err == nil {
			rank = n - 1
		}
	}
	return rank*8 + file
}

func joinLocations(locs []string) string {
	switch len(locs) {
	case 0:
		return ""
	case 1:
		return locs[0]
	case 2:
		return locs[0] + " and " + locs[1]
	}
	return strings.Join(locs[:len(locs)-1], ", ") + ", and " + locs[len(locs)-1]
}

// stringify returns strings as is and everything else as JSON with
// sorted keys.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	}
	return true
}
