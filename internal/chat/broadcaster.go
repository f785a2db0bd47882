package chat

import (
	"sync"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// Broadcaster fans reconciled changes out to stream clients of a company.
// Publishing never blocks; a client whose buffer is full misses the change.
type Broadcaster struct {
	mu      sync.Mutex
	buffer  int
	clients map[shared.ID]map[*subscriber]struct{}
	metrics *Metrics
}

type subscriber struct {
	ch chan Change
}

// NewBroadcaster constructs a Broadcaster with the given per-client buffer.
func NewBroadcaster(buffer int, metrics *Metrics) *Broadcaster {
	if buffer <= 0 {
		buffer = 32
	}
	return &Broadcaster{buffer: buffer, clients: make(map[shared.ID]map[*subscriber]struct{}), metrics: metrics}
}

// Subscribe registers a client for company. The returned cancel func must be
// called once the client goes away; it closes the channel.
func (b *Broadcaster) Subscribe(company shared.ID) (<-chan Change, func()) {
	sub := &subscriber{ch: make(chan Change, b.buffer)}
	b.mu.Lock()
	set, ok := b.clients[company]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.clients[company] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()
	b.metrics.streamClients(1)

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients[company], sub)
			if len(b.clients[company]) == 0 {
				delete(b.clients, company)
			}
			close(sub.ch)
			b.mu.Unlock()
			b.metrics.streamClients(-1)
		})
	}
}

// Publish delivers c to every client of company.
func (b *Broadcaster) Publish(company shared.ID, c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.clients[company] {
		select {
		case sub.ch <- c:
		default:
			b.metrics.droppedChange()
		}
	}
}
