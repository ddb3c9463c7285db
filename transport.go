package wiihost

import (
	"io"
	"sync"
)

// Transport is the external controller collaborator: a byte-stream sink
// to the controller (Write) and source from it (Read), plus a credit
// check the engine polls before each TX frame so it never overruns the
// controller's buffer.
type Transport interface {
	io.ReadWriteCloser
	HasSendCredit() bool
}

// MemoryTransport is an in-memory Transport for tests and for embedding
// the engine without a real adapter underneath it. Credit is unlimited
// unless a finite budget is set with SetCredit.
type MemoryTransport struct {
	mu      sync.Mutex
	written [][]byte
	credit  int // negative means unlimited
}

// NewMemoryTransport returns a transport with unlimited send credit.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{credit: -1}
}

// SetCredit bounds the number of Write calls HasSendCredit will allow
// before reporting false; used to exercise the allocation-failure /
// credit-starvation paths in tests. A negative value restores unlimited
// credit.
func (m *MemoryTransport) SetCredit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit = n
}

// HasSendCredit reports whether a Write would currently be accepted.
func (m *MemoryTransport) HasSendCredit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credit != 0
}

// Write records a copy of p as one outbound frame and consumes one unit
// of credit if a finite budget is set.
func (m *MemoryTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	m.written = append(m.written, cp)
	if m.credit > 0 {
		m.credit--
	}
	return len(p), nil
}

// Read always reports EOF; inbound traffic is fed through Engine.Receive
// instead.
func (m *MemoryTransport) Read([]byte) (int, error) { return 0, io.EOF }

// Close is a no-op.
func (m *MemoryTransport) Close() error { return nil }

// Frames returns every frame written so far, oldest first.
func (m *MemoryTransport) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}
