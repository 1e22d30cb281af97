// Package tcp forwards matched commands to a TCP endpoint and provides
// the receiving listener that executes forwarded moves on the board.
//
// Each forwarded command is one connection carrying one JSON payload
// terminated by the configured delimiter, in the configured character
// encoding.
package tcp

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Defaults shared by the forwarder and the listener.
const (
	DefaultHost      = "localhost"
	DefaultPort      = 8766
	DefaultDelimiter = "\n"
	DefaultEncoding  = "utf-8"
)

// UnescapeDelimiter translates the escaped forms "\\n" and "\\r\\n" that
// arrive from environment variables into control characters.
func UnescapeDelimiter(s string) string {
	switch s {
	case `\n`:
		return "\n"
	case `\r\n`:
		return "\r\n"
	}
	return s
}

// codec converts between text and wire bytes.
type codec struct {
	name      string
	enc       encoding.Encoding
	delimiter []byte
}

// newCodec looks up a WHATWG encoding name ("utf-8", "latin1",
// "utf-16le", ...) and encodes the delimiter with it.
func newCodec(name, delimiter string) (*codec, error) {
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	c := &codec{name: name, enc: enc}
	if delimiter != "" {
		d, err := enc.NewEncoder().Bytes([]byte(delimiter))
		if err != nil {
			return nil, fmt.Errorf("encode delimiter: %w", err)
		}
		c.delimiter = d
	}
	return c, nil
}

// frame encodes text and appends the delimiter unless already present.
func (c *codec) frame(text string) ([]byte, error) {
	data, err := c.enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode as %s: %w", c.name, err)
	}
	if len(c.delimiter) > 0 && !bytes.HasSuffix(data, c.delimiter) {
		data = append(data, c.delimiter...)
	}
	return data, nil
}

// unframe strips one trailing delimiter and decodes.
func (c *codec) unframe(data []byte) (string, error) {
	if len(c.delimiter) > 0 {
		data = bytes.TrimSuffix(data, c.delimiter)
	}
	text, err := c.enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode as %s: %w", c.name, err)
	}
	return string(text), nil
}
