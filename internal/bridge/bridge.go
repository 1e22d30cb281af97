// Package bridge holds what every transport adapter shares: the narrow
// Handler contract adapters drive the engine through, command payload
// decoding, and the feedback signal relayed upstream.
package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/omnilink/internal/ir"
)

// Handler is the only engine surface adapters may depend on.
// *engine.Engine implements it.
type Handler interface {
	Handle(text string, meta ir.Meta) ir.Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(text string, meta ir.Meta) ir.Result

// Handle calls f(text, meta).
func (f HandlerFunc) Handle(text string, meta ir.Meta) ir.Result {
	return f(text, meta)
}

// Command is a decoded inbound payload.
type Command struct {
	Text    string
	Meta    ir.Meta
	ReplyTo string
}

// Blank reports whether there is no command text to handle.
func (c Command) Blank() bool {
	return strings.TrimSpace(c.Text) == ""
}

// ErrBadPayload is returned for payloads that are JSON objects of the
// wrong shape.
var ErrBadPayload = errors.New("bad command payload")

// DecodeCommand accepts either a raw command string or a JSON object
//
//	{"command": "...", "meta": {...}, "reply_to": "..."}
//
// reply_to may also be given as meta.reply_to. Invalid UTF-8 is replaced.
// A JSON object whose command is missing or not a string decodes to a
// blank Command.
func DecodeCommand(payload []byte) (Command, error) {
	text := strings.ToValidUTF8(string(payload), "�")

	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Command{Text: text, Meta: ir.Meta{}}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		// Not JSON after all; treat as a raw command.
		return Command{Text: text, Meta: ir.Meta{}}, nil
	}

	cmd := Command{Meta: ir.Meta{}}
	if raw, ok := obj["command"]; ok {
		_ = json.Unmarshal(raw, &cmd.Text)
	}
	if raw, ok := obj["meta"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &cmd.Meta); err != nil {
			return Command{}, fmt.Errorf("%w: meta must be an object", ErrBadPayload)
		}
		if cmd.Meta == nil {
			cmd.Meta = ir.Meta{}
		}
	}
	if raw, ok := obj["reply_to"]; ok {
		_ = json.Unmarshal(raw, &cmd.ReplyTo)
	}
	if cmd.ReplyTo == "" {
		if s, ok := cmd.Meta["reply_to"].(string); ok {
			cmd.ReplyTo = s
		}
	}
	return cmd, nil
}

// Feedback is the upstream success signal: the command matched and the
// routed handler did not fail.
func Feedback(res ir.Result) bool {
	if !res.OK {
		return false
	}
	_, failed := ir.FailureOf(res.Result)
	return !failed
}

// Dispatch handles cmd and returns the result with its feedback. A blank
// command is not handled and yields false.
func Dispatch(h Handler, cmd Command) (ir.Result, bool) {
	if cmd.Blank() {
		return ir.Result{}, false
	}
	res := h.Handle(cmd.Text, cmd.Meta)
	return res, Feedback(res)
}

// FeedbackMessage is the reply payload adapters send upstream.
type FeedbackMessage struct {
	Feedback bool `json:"feedback"`
}

// ContextMessage is the payload of a context push.
type ContextMessage struct {
	Context string `json:"context"`
}

// EncodeFeedback returns the JSON reply for feedback.
func EncodeFeedback(feedback bool) []byte {
	data, _ := json.Marshal(FeedbackMessage{Feedback: feedback})
	return data
}

// EncodeContext returns the JSON context push for text.
func EncodeContext(text string) []byte {
	data, _ := json.Marshal(ContextMessage{Context: text})
	return data
}
