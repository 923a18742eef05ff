package cluster

import (
	"bytes"
	"io"
)

// countingSink is a minimal in-memory raft.SnapshotSink, used only to
// exercise FSM.Snapshot/Restore round-tripping without a real raft
// FileSnapshotStore.
type countingSink struct {
	buf bytes.Buffer
}

func (s *countingSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *countingSink) Close() error                { return nil }
func (s *countingSink) Cancel() error               { return nil }
func (s *countingSink) ID() string                  { return "test-snapshot" }

func (s *countingSink) reader() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(s.buf.Bytes()))
}
