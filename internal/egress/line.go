package egress

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fieldgate/fieldgate/internal/record"
)

// LineSink writes one "DATA:<json>" line per record, the contract of the
// original serial bridge that a host process tails.
type LineSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineSink writes records to w (typically stdout).
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: w}
}

func (s *LineSink) Name() string { return "line" }

func (s *LineSink) Emit(rec *record.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("egress: line: marshal: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "DATA:%s\n", raw); err != nil {
		return fmt.Errorf("egress: line: write: %w", err)
	}
	return nil
}

func (s *LineSink) Close() error { return nil }
