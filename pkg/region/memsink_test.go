package region

import (
	"bytes"
	"io"
)

// memSink is an in-memory raft.SnapshotSink, standing in for the file
// sink bootstrapRaft wires from raft.NewFileSnapshotStore — tests only
// need to round-trip Persist's bytes through Restore.
type memSink struct {
	buf bytes.Buffer
}

func (s *memSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *memSink) Close() error                { return nil }
func (s *memSink) ID() string                  { return "test-snapshot" }
func (s *memSink) Cancel() error               { return nil }

func (s *memSink) readCloser() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(s.buf.Bytes()))
}
