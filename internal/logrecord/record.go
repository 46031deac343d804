// Package logrecord defines the canonical unit of buffered process output.
package logrecord

import "time"

// Kind identifies which output stream a Record came from.
type Kind string

const (
	Stdout Kind = "stdout"
	Stderr Kind = "stderr"
)

// Record is an immutable snapshot of one logical line (or partial line) of
// output from a supervised child process. The one exception to immutability
// is the in-place continuation merge performed by the assembler package on
// the newest record of a buffer; callers outside that package must treat
// Record as read-only.
type Record struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// New builds a Record stamped with the current UTC time.
func New(kind Kind, text string) Record {
	return Record{Kind: kind, Timestamp: time.Now().UTC(), Text: text}
}

// HasNewline reports whether Text ends with a line terminator.
func (r Record) HasNewline() bool {
	return len(r.Text) > 0 && r.Text[len(r.Text)-1] == '\n'
}
