package runner

import (
	"sync"

	"github.com/armon/circbuf"
)

// tail keeps the last bytes written to it. Writes come from the exec copy
// goroutine while Status reads, so access is serialized.
type tail struct {
	mu  sync.Mutex
	buf *circbuf.Buffer
}

func newTail(size int64) (*tail, error) {
	buf, err := circbuf.NewBuffer(size)
	if err != nil {
		return nil, err
	}
	return &tail{buf: buf}, nil
}

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Write(p)
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

