// Package ir provides the data types shared by the engine, the template
// sources, the journal, and the transport adapters.
//
// This package contains type definitions and their encodings only. Other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Vars keep capture order (left-to-right token order of the template)
//   - Events are values; nothing in the pipeline mutates one after creation
//   - Meta is opaque and passed through unmodified
//   - All JSON tags use snake_case
package ir
