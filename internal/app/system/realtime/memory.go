// internal/app/system/realtime/memory.go
package realtime

import (
	"context"
	"sync"
)

// MemoryHub is an in-process Publisher that records published messages per
// topic. It backs dispatcher and engine tests; it is not used in production.
type MemoryHub struct {
	mu       sync.Mutex
	messages map[string][][]byte
	failWith error
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{messages: make(map[string][][]byte)}
}

// FailWith makes every subsequent Publish return err. Pass nil to recover.
func (h *MemoryHub) FailWith(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failWith = err
}

func (h *MemoryHub) Publish(_ context.Context, topic string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failWith != nil {
		return h.failWith
	}
	cp := append([]byte{}, payload...)
	h.messages[topic] = append(h.messages[topic], cp)
	return nil
}

// Messages returns the payloads published to a topic, in order.
func (h *MemoryHub) Messages(topic string) [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte{}, h.messages[topic]...)
}
