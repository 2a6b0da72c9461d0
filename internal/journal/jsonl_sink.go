package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"github.com/focusd/sbh/internal/model"
)

// jsonlSink appends one JSON object per line. Never rewrites, never
// wraps a line, so a partially-written trailing line from a crash is the
// only possible corruption and is easy for a reader to detect and skip.
type jsonlSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

type jsonlRecord struct {
	Seq     uint64         `json:"seq"`
	Ts      string         `json:"ts"`
	Kind    string         `json:"kind"`
	Mount   string         `json:"mount,omitempty"`
	Path    string         `json:"path,omitempty"`
	Bytes   int64          `json:"bytes,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func newJSONLSink(path string) (*jsonlSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &jsonlSink{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

func (j *jsonlSink) write(evt model.ActivityEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec := jsonlRecord{
		Seq:     evt.Seq,
		Ts:      evt.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
		Kind:    string(evt.Kind),
		Mount:   evt.MountID,
		Path:    evt.Path,
		Bytes:   evt.Bytes,
		Payload: evt.Fields,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *jsonlSink) close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}
