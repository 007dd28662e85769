package provider

import (
	"sync"
)

// ProgressCounter counts the calls made for each provider job of a stub adapter.
type ProgressCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func NewProgressCounter() *ProgressCounter {
	return &ProgressCounter{calls: make(map[string]int)}
}

// Next records one more call for id and returns the call number, starting at 1.
func (p *ProgressCounter) Next(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls[id]++
	return p.calls[id]
}

func (p *ProgressCounter) Forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.calls, id)
}

// StubVideo returns a tiny ISO BMFF header standing in for a rendered video.
func StubVideo() []byte {
	return []byte{
		0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
		'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
		'i', 's', 'o', 'm', 'm', 'p', '4', '1',
	}
}
