package xq

import "errors"

// ErrSequenceClosed is returned when a closed sequence is read.
var ErrSequenceClosed = errors.New("result sequence is closed")

// SliceSequence is an in-memory ResultSequence over a fixed set of items.
type SliceSequence struct {
	items  []Item
	pos    int
	err    error
	closed bool
}

// NewSequence returns a sequence over items.
func NewSequence(items ...Item) *SliceSequence {
	return &SliceSequence{items: items, pos: -1}
}

// FailingSequence returns a sequence that yields items and then reports err.
func FailingSequence(err error, items ...Item) *SliceSequence {
	s := NewSequence(items...)
	s.err = err
	return s
}

func (s *SliceSequence) Next() bool {
	if s.closed {
		return false
	}
	if s.pos+1 >= len(s.items) {
		s.pos = len(s.items)
		return false
	}
	s.pos++
	return true
}

func (s *SliceSequence) Item() Item {
	if s.pos < 0 || s.pos >= len(s.items) {
		return Item{}
	}
	return s.items[s.pos]
}

func (s *SliceSequence) Err() error {
	if s.closed {
		return ErrSequenceClosed
	}
	if s.pos >= len(s.items) {
		return s.err
	}
	return nil
}

func (s *SliceSequence) Close() error {
	s.closed = true
	return nil
}

// Len returns the number of items in the sequence.
func (s *SliceSequence) Len() int {
	return len(s.items)
}
