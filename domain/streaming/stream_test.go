package streaming_test

import (
	"io"
	"strings"
	"testing"

	"github.com/oagw/gateway/domain/streaming"
)

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

func TestStreamReader_BasicReading(t *testing.T) {
	data := "Hello, World!"
	reader := streaming.NewStreamReader(nopCloser{strings.NewReader(data)}, false)

	buf := make([]byte, 1024)
	n, err := reader.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read error: %v", err)
	}

	if n != len(data) {
		t.Errorf("read %d bytes, want %d", n, len(data))
	}

	if string(buf[:n]) != data {
		t.Errorf("got %q, want %q", string(buf[:n]), data)
	}
}

func TestStreamReader_Accumulate(t *testing.T) {
	data := "part1|part2|part3"
	reader := streaming.NewStreamReader(nopCloser{strings.NewReader(data)}, true)

	buf := make([]byte, 5)
	for {
		_, err := reader.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
	}

	if got := string(reader.Bytes()); got != data {
		t.Errorf("accumulated data = %q, want %q", got, data)
	}
}

func TestStreamReader_NoAccumulate(t *testing.T) {
	data := "data that should not accumulate"
	reader := streaming.NewStreamReader(nopCloser{strings.NewReader(data)}, false)

	buf := make([]byte, 1024)
	reader.Read(buf)

	if reader.Bytes() != nil {
		t.Error("Bytes should return nil when not accumulating")
	}
}

func TestStreamReader_Close(t *testing.T) {
	reader := streaming.NewStreamReader(nopCloser{strings.NewReader("test data")}, false)

	if err := reader.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
}

func TestStreamReader_ChunkedReads(t *testing.T) {
	data := strings.Repeat("x", 100)
	reader := streaming.NewStreamReader(nopCloser{strings.NewReader(data)}, true)

	buf := make([]byte, 10)
	total := 0
	for {
		n, err := reader.Read(buf)
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
	}

	if total != len(data) {
		t.Errorf("total read = %d, want %d", total, len(data))
	}
	if len(reader.Bytes()) != len(data) {
		t.Errorf("accumulated length = %d, want %d", len(reader.Bytes()), len(data))
	}
}
