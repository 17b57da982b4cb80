package raisers

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Cursor is the server's opaque position marker (last_id). It holds the raw
// JSON token exactly as the server sent it so that numbers, strings or
// composite keys survive a round trip and can be persisted between runs.
type Cursor string

// StartCursor is the sentinel position before the first batch.
const StartCursor Cursor = "0"

// IsZero reports whether the cursor is unset.
func (c Cursor) IsZero() bool {
	return c == ""
}

func (c Cursor) String() string {
	if c.IsZero() {
		return string(StartCursor)
	}
	return string(c)
}

// MarshalJSON writes the raw token back unchanged.
func (c Cursor) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte(StartCursor), nil
	}
	return []byte(c), nil
}

// UnmarshalJSON stores the raw token. A JSON null leaves the cursor empty.
func (c *Cursor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if !json.Valid(data) {
		return fmt.Errorf("invalid cursor token %q", data)
	}
	*c = Cursor(data)
	return nil
}
