package tracelog

import (
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names a selectable trace-log compression algorithm, mirroring
// the teacher's advanced/compression.CompressionAlgorithm registry
// (advanced/compression/engine.go) but scoped to three codecs instead
// of a pluggable set, since the trace sink has one writer and one
// format per run.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecSnappy Codec = "snappy"
	CodecLZ4    Codec = "lz4"
	CodecZstd   Codec = "zstd"
)

// Sink wraps an underlying writer with the compressor selected by Codec.
// With lz4 or zstd every Entry goes into one streaming compressed frame
// that Close finishes; with snappy each Entry is block-encoded on its
// own; with none each Entry is written uncompressed.
type Sink struct {
	codec Codec
	w     io.WriteCloser
	under io.Writer
}

// NewSink opens a trace sink over w using the requested codec.
func NewSink(w io.Writer, codec Codec) (*Sink, error) {
	switch codec {
	case CodecNone, "":
		return &Sink{codec: CodecNone, under: w}, nil
	case CodecSnappy:
		return &Sink{codec: CodecSnappy, under: w}, nil
	case CodecLZ4:
		zw := lz4.NewWriter(w)
		return &Sink{codec: CodecLZ4, w: zw, under: w}, nil
	case CodecZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("tracelog: open zstd writer: %w", err)
		}
		return &Sink{codec: CodecZstd, w: zw, under: w}, nil
	default:
		return nil, fmt.Errorf("tracelog: unknown trace codec %q", codec)
	}
}

// Write encodes one trace entry with the sink's codec and writes it out.
func (s *Sink) Write(e Entry) error {
	line := []byte(e.String() + "\n")

	switch s.codec {
	case CodecNone:
		_, err := s.under.Write(line)
		return err
	case CodecSnappy:
		// Snappy has no streaming framing in this library; each entry is
		// block-compressed independently so the sink stays append-only.
		_, err := s.under.Write(snappy.Encode(nil, line))
		return err
	case CodecLZ4, CodecZstd:
		_, err := s.w.Write(line)
		return err
	default:
		return fmt.Errorf("tracelog: unknown trace codec %q", s.codec)
	}
}

// Close flushes and releases any streaming compressor resources.
func (s *Sink) Close() error {
	if s.w != nil {
		return s.w.Close()
	}
	return nil
}
