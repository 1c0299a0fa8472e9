package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/postlens/agent/internal/types"
)

// DiskFrameSink writes captured frames into the frames directory under the
// filename convention of spec §6. It is the only writer of that directory;
// the uploader only reads it.
type DiskFrameSink struct {
	dir string
}

// NewDiskFrameSink builds a sink rooted at dir, creating it on first write.
func NewDiskFrameSink(dir string) *DiskFrameSink {
	return &DiskFrameSink{dir: dir}
}

// WriteFrame writes one JPEG-encoded frame, returning the path it was
// written to.
func (s *DiskFrameSink) WriteFrame(fullID string, counter int, jpeg []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("session: failed to create frames directory %s: %w", s.dir, err)
	}

	name := types.MakeFrameFilename(fullID, counter, time.Now().UnixMilli())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, jpeg, 0o644); err != nil {
		return "", fmt.Errorf("session: failed to write frame %s: %w", name, err)
	}
	return path, nil
}
