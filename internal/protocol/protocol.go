// Package protocol holds the SCM10 command set and the terminator
// escaping used to store line endings as readable text.
package protocol

import "strings"

const (
	DefaultTerminator = `\r\n`
	DefaultIDNQuery   = "*IDN?"
	DefaultTempQuery  = "T?"
)

// Config describes how the instrument is spoken to.
type Config struct {
	Terminator []byte // raw bytes as sent on the wire
	IDNQuery   string
	TempQuery  string
}

// Default returns the factory settings of the SCM10.
func Default() Config {
	return Config{
		Terminator: DecodeTerminator(DefaultTerminator),
		IDNQuery:   DefaultIDNQuery,
		TempQuery:  DefaultTempQuery,
	}
}

// New builds a Config from an escaped terminator such as `\r\n`.
// Empty queries fall back to the defaults.
func New(escapedTerminator, idnQuery, tempQuery string) Config {
	c := Config{
		Terminator: DecodeTerminator(strings.TrimSpace(escapedTerminator)),
		IDNQuery:   strings.TrimSpace(idnQuery),
		TempQuery:  strings.TrimSpace(tempQuery),
	}
	if c.IDNQuery == "" {
		c.IDNQuery = DefaultIDNQuery
	}
	if c.TempQuery == "" {
		c.TempQuery = DefaultTempQuery
	}
	return c
}

// EscapedTerminator returns the terminator in its stored form.
func (c Config) EscapedTerminator() string {
	return EncodeTerminator(c.Terminator)
}
