// debug capture of raw request bytes
// every worker writes through one Recorder, records are appended under a lock
// so bytes of concurrent connections never interleave
package capture

import (
	"fmt"
	"net"
	"os"
	"sync"
)

type Recorder struct {
	mu sync.Mutex
	f  *os.File
}

// Open creates or appends to the capture file at path
func Open(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	return &Recorder{f: f}, nil
}

// Record appends one framed record:
// "# conn=<id> remote=<addr> bytes=<n>\n" then raw bytes then "\n"
func (r *Recorder) Record(id uint64, remote net.Addr, raw []byte) error {
	addr := "-"
	if remote != nil {
		addr = remote.String()
	}

	rec := fmt.Appendf(nil, "# conn=%d remote=%s bytes=%d\n", id, addr, len(raw))
	rec = append(rec, raw...)
	rec = append(rec, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return os.ErrClosed
	}
	_, err := r.f.Write(rec)
	return err
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
