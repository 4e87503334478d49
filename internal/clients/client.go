// Package clients enumerates the host applications staten can install apps into.
package clients

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownClient is returned when a client name does not match a supported host.
var ErrUnknownClient = errors.New("unknown client")

// Client identifies a supported host application.
type Client int

const (
	// Claude is the Claude Desktop application.
	Claude Client = iota
	// Cursor is the Cursor editor.
	Cursor
)

// All lists every supported client in display order.
var All = []Client{Claude, Cursor}

// Parse converts a client name into a Client.
func Parse(name string) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "claude":
		return Claude, nil
	case "cursor":
		return Cursor, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownClient, name)
}

// String returns the wire name passed to the backend.
func (c Client) String() string {
	switch c {
	case Claude:
		return "claude"
	case Cursor:
		return "cursor"
	}
	return fmt.Sprintf("client(%d)", int(c))
}

// DisplayName returns the human readable host name.
func (c Client) DisplayName() string {
	switch c {
	case Claude:
		return "Claude"
	case Cursor:
		return "Cursor"
	}
	return c.String()
}

// SupportsRestart reports whether the backend can relaunch this host.
func (c Client) SupportsRestart() bool {
	switch c {
	case Claude:
		return true
	case Cursor:
		return false
	}
	return false
}

// Valid reports whether c is one of the supported clients.
func (c Client) Valid() bool {
	switch c {
	case Claude, Cursor:
		return true
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (c Client) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownClient, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Client) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
