package classify

import (
	"bufio"
	"io"
	"unicode/utf8"
)

// MaxLineBytes bounds a single output line; anything longer is dropped and
// counted rather than classified.
const MaxLineBytes = 64 * 1024

// Event is one line of build output with its classification, if any.
type Event struct {
	Line   string
	Record *Record
}

// Stream reads merged stdout+stderr line by line and classifies
// incrementally, so output is visible while the process still runs.
// Malformed lines (invalid UTF-8, longer than MaxLineBytes) are dropped and
// counted, never fatal.
type Stream struct {
	reader  *bufio.Reader
	dropped int
}

// NewStream wraps the merged output pipe of a build process.
func NewStream(r io.Reader) *Stream {
	return &Stream{reader: bufio.NewReaderSize(r, MaxLineBytes)}
}

// Run emits one event per valid line until the reader is exhausted. It is
// meant to be the body of the per-session classifier goroutine; it returns
// when the pipe closes.
func (s *Stream) Run(emit func(Event)) {
	for {
		chunk, isPrefix, err := s.reader.ReadLine()
		if err != nil {
			return
		}
		if isPrefix {
			s.dropped++
			if !s.drainLongLine() {
				return
			}
			continue
		}
		if !utf8.Valid(chunk) {
			s.dropped++
			continue
		}
		line := string(chunk)
		event := Event{Line: line}
		if rec, ok := ClassifyLine(line); ok {
			event.Record = &rec
		}
		emit(event)
	}
}

// drainLongLine consumes the remainder of an over-long line, reporting
// whether the stream is still readable afterwards.
func (s *Stream) drainLongLine() bool {
	for {
		_, isPrefix, err := s.reader.ReadLine()
		if err != nil {
			return false
		}
		if !isPrefix {
			return true
		}
	}
}

// Dropped is the count of malformed lines skipped. Read it after Run
// returns.
func (s *Stream) Dropped() int { return s.dropped }
