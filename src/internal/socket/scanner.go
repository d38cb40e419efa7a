package socket

import "bytes"

// StreamScanner accumulates reads until a pattern shows up.
type StreamScanner struct {
	pattern   []byte
	maxLength int
	received  []byte
	finished  bool
}

// NewStreamScanner creates a scanner looking for pattern within maxLength
// buffered bytes.
func NewStreamScanner(pattern []byte, maxLength int) *StreamScanner {
	return &StreamScanner{pattern: pattern, maxLength: maxLength}
}

// Len returns the number of buffered bytes.
func (s *StreamScanner) Len() int {
	return len(s.received)
}

// AddAndScan appends data and looks for the pattern. done is false while
// more input is needed. When done, match holds everything up to and
// including the pattern and rest the bytes after it; if maxLength is
// exceeded first, match is nil and rest carries all buffered bytes.
// Calls after done return done == false and nothing else.
func (s *StreamScanner) AddAndScan(data []byte) (match, rest []byte, done bool) {
	if s.finished {
		return nil, nil, false
	}

	// Only the new bytes and a pattern-sized overlap can hold a new match.
	start := len(s.received) - len(s.pattern) + 1
	if start < 0 {
		start = 0
	}
	s.received = append(s.received, data...)

	idx := bytes.Index(s.received[start:], s.pattern)
	if idx < 0 {
		if len(s.received) > s.maxLength {
			s.finished = true
			return nil, s.received, true
		}
		return nil, nil, false
	}

	s.finished = true
	end := start + idx + len(s.pattern)
	return s.received[:end:end], s.received[end:], true
}
