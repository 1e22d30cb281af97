// Package harness runs YAML command scenarios against a real engine.
//
// # Scenario Format
//
//	name: chess_moves
//	description: "What this scenario validates"
//	templates:
//	  - "move [color] [piece] from [location1:square] to [location2:square]"
//	template_file: commands.txt   # optional, relative to the scenario
//	catalog: catalog.cue          # optional, relative to the scenario
//	types:
//	  square: "[a-h][1-8]"
//	  count: {pattern: "\\d+", convert: int}
//	routes:
//	  - template: "move [color] [piece] from [location1:square] to [location2:square]"
//	    echo: true
//	steps:
//	  - command: "move white knight from B1 to C3"
//	    meta: {source: test}
//	    expect:
//	      ok: true
//	      template: "move [color] [piece] from [location1:square] to [location2:square]"
//	      vars: {color: white}
//	      feedback: true
//	assertions:
//	  - type: trace_count
//	    template: "move [color] [piece] from [location1:square] to [location2:square]"
//	    count: 1
//
// # Routes
//
// A route answers events that matched its template (or every matched
// event when template is empty) with one of: the captured vars (echo),
// a fixed result, or a handler error.
//
// # Assertion Types
//
//   - trace_contains: a step matched template with a vars subset
//   - trace_order: templates were matched in this order
//   - trace_count: template was matched exactly count times; an empty
//     template counts unmatched steps
//   - metric: an engine counter equals count
//   - history_len: the engine retained exactly count events
//
// # Deterministic Testing
//
// Every run uses a fresh engine with testutil.FixedClock (one second per
// step from testutil.DefaultEpoch) and testutil.SequenceIDs, so traces
// are byte-identical across runs and suitable for golden comparison.
package harness
