// Package assembler folds raw decoded chunks from a child process stream
// into logrecord.Record values, merging a write that lands on an
// unterminated trailing line into that same record.
package assembler

import (
	"strings"
	"time"

	"github.com/ryym/procfleet/internal/logrecord"
	"github.com/ryym/procfleet/internal/ringbuffer"
)

// Feed splits chunk into pieces at every newline (the newline stays attached
// to the preceding piece) and applies them to buf:
//
//   - if the buffer's newest record has the same kind and does not already
//     end in a newline, the first piece extends that record in place
//     (text appended, timestamp advanced to now);
//   - every remaining piece becomes a new record.
//
// Feed must be called with the owning supervisor's lock held, and returns
// every record that was newly appended (the merged record is reported too,
// via its post-merge value, so callers can broadcast it).
func Feed(buf *ringbuffer.Buffer, kind logrecord.Kind, chunk string) []logrecord.Record {
	if chunk == "" {
		return nil
	}

	pieces := splitKeepNewline(chunk)
	appended := make([]logrecord.Record, 0, len(pieces))

	first := true
	for _, piece := range pieces {
		if first {
			first = false
			if newest, ok := buf.Newest(); ok && newest.Kind == kind && !newest.HasNewline() {
				newest.Text += piece
				newest.Timestamp = time.Now().UTC()
				buf.ReplaceNewest(newest)
				appended = append(appended, newest)
				continue
			}
		}
		rec := logrecord.New(kind, piece)
		buf.Append(rec)
		appended = append(appended, rec)
	}

	return appended
}

// splitKeepNewline splits s at every '\n', keeping the newline attached to
// the preceding piece. Empty trailing pieces (no content after the final
// newline) are dropped, matching "a chunk ends exactly on a line boundary".
func splitKeepNewline(s string) []string {
	var pieces []string
	for {
		idx := strings.IndexByte(s, '\n')
		if idx == -1 {
			if s != "" {
				pieces = append(pieces, s)
			}
			break
		}
		pieces = append(pieces, s[:idx+1])
		s = s[idx+1:]
	}
	return pieces
}
