package socket

import "testing"

func TestStreamScanner(t *testing.T) {
	tests := []struct {
		name      string
		chunks    []string
		maxLength int
		wantDone  int // index of the chunk that finishes the scan, -1 for never
		wantMatch string
		wantRest  string
		overflow  bool
	}{
		{
			name:      "match in first chunk",
			chunks:    []string{"GET / HTTP/1.1\r\n\r\nbody"},
			maxLength: 100,
			wantDone:  0,
			wantMatch: "GET / HTTP/1.1\r\n\r\n",
			wantRest:  "body",
		},
		{
			name:      "pattern split across chunks",
			chunks:    []string{"abc\r\n", "\r", "\nrest"},
			maxLength: 100,
			wantDone:  2,
			wantMatch: "abc\r\n\r\n",
			wantRest:  "rest",
		},
		{
			name:      "overflow delivers everything",
			chunks:    []string{"0123456789", "abcdef"},
			maxLength: 12,
			wantDone:  1,
			wantRest:  "0123456789abcdef",
			overflow:  true,
		},
		{
			name:      "needs more input",
			chunks:    []string{"abc", "def"},
			maxLength: 100,
			wantDone:  -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStreamScanner([]byte("\r\n\r\n"), tt.maxLength)
			doneAt := -1
			var match, rest []byte
			for i, chunk := range tt.chunks {
				m, r, done := s.AddAndScan([]byte(chunk))
				if done {
					doneAt, match, rest = i, m, r
					break
				}
			}

			if doneAt != tt.wantDone {
				t.Fatalf("Expected scan to finish at chunk %d, got %d", tt.wantDone, doneAt)
			}
			if doneAt < 0 {
				return
			}
			if tt.overflow != (match == nil) {
				t.Errorf("Expected overflow=%v, got match %q", tt.overflow, match)
			}
			if !tt.overflow && string(match) != tt.wantMatch {
				t.Errorf("Expected match %q, got %q", tt.wantMatch, match)
			}
			if string(rest) != tt.wantRest {
				t.Errorf("Expected rest %q, got %q", tt.wantRest, rest)
			}
		})
	}
}

func TestStreamScanner_FinishedIgnoresInput(t *testing.T) {
	s := NewStreamScanner([]byte("\n"), 10)
	if _, _, done := s.AddAndScan([]byte("a\n")); !done {
		t.Fatal("Expected match")
	}
	if m, r, done := s.AddAndScan([]byte("b\n")); done || m != nil || r != nil {
		t.Error("Expected finished scanner to ignore input")
	}
}

func TestStatus_IsDisconnected(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusInvalid:       true,
		StatusConnecting:    false,
		StatusEstablished:   false,
		StatusDisconnecting: false,
		StatusClosed:        true,
	} {
		if got := isDisconnected(status); got != want {
			t.Errorf("isDisconnected(%s) = %v, want %v", status, got, want)
		}
	}
}
