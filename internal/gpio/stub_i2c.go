package gpio

import (
	"sync"

	"periph.io/x/conn/v3/physic"
)

// stubI2CBus implements periph.io/x/conn/v3/i2c.Bus with canned,
// per-address register responses, so SHT41-style drivers can be tested
// without real hardware.
type stubI2CBus struct {
	mu        sync.Mutex
	responses map[uint16][]byte // addr -> next bytes to return on read
	lastWrite map[uint16][]byte
}

func newStubI2CBus() *stubI2CBus {
	return &stubI2CBus{
		responses: map[uint16][]byte{},
		lastWrite: map[uint16][]byte{},
	}
}

func (b *stubI2CBus) String() string { return "stub-i2c" }

// SeedResponse arranges for the next read against addr to return data.
func (b *stubI2CBus) SeedResponse(addr uint16, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[addr] = data
}

func (b *stubI2CBus) LastWrite(addr uint16) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastWrite[addr]
}

func (b *stubI2CBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(w) > 0 {
		cp := make([]byte, len(w))
		copy(cp, w)
		b.lastWrite[addr] = cp
	}
	if len(r) > 0 {
		resp := b.responses[addr]
		n := copy(r, resp)
		for i := n; i < len(r); i++ {
			r[i] = 0
		}
	}
	return nil
}

func (b *stubI2CBus) SetSpeed(f physic.Frequency) error { return nil }
