// Package streaming provides utilities for handling streaming protocols.
package streaming

import "io"

// StreamReader wraps a reader so upstream response bodies can be forwarded
// chunk by chunk without buffering the whole response in memory.
type StreamReader struct {
	reader     io.ReadCloser
	accumulate bool
	buffer     []byte
}

// NewStreamReader creates a reader that passes bytes through unchanged.
// If accumulate is true, all data read so far is retained and can be read
// back with Bytes; if false, Bytes always returns nil.
func NewStreamReader(r io.ReadCloser, accumulate bool) *StreamReader {
	return &StreamReader{
		reader:     r,
		accumulate: accumulate,
	}
}

// Read implements io.Reader.
func (s *StreamReader) Read(p []byte) (int, error) {
	n, err := s.reader.Read(p)
	if n > 0 && s.accumulate {
		s.buffer = append(s.buffer, p[:n]...)
	}
	return n, err
}

// Close closes the underlying reader.
func (s *StreamReader) Close() error {
	return s.reader.Close()
}

// Bytes returns the data accumulated so far, or nil if accumulate was false.
func (s *StreamReader) Bytes() []byte {
	return s.buffer
}
