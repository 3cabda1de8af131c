package mcpservice

import "sync"

// ChangeNotifier is an in-process pub-sub used by the registries to signal
// that their contents changed, so transports can emit list_changed
// notifications.
type ChangeNotifier struct {
	mu     sync.Mutex
	subs   map[int]chan struct{}
	nextID int
	closed bool
}

// Notify signals every subscriber. Sends are non-blocking; a subscriber that
// has not drained its previous signal simply keeps the pending one.
func (cn *ChangeNotifier) Notify() {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return
	}
	for _, ch := range cn.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a channel receiving a signal per change (coalesced) and a
// func that releases the subscription. The channel is closed on release or
// when the notifier is closed.
func (cn *ChangeNotifier) Subscribe() (<-chan struct{}, func()) {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	ch := make(chan struct{}, 1)
	if cn.closed {
		close(ch)
		return ch, func() {}
	}
	if cn.subs == nil {
		cn.subs = make(map[int]chan struct{})
	}
	id := cn.nextID
	cn.nextID++
	cn.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			cn.mu.Lock()
			defer cn.mu.Unlock()
			if c, ok := cn.subs[id]; ok {
				delete(cn.subs, id)
				close(c)
			}
		})
	}
}

// Close releases every subscriber. Further Notify calls are no-ops.
func (cn *ChangeNotifier) Close() {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return
	}
	cn.closed = true
	for id, ch := range cn.subs {
		delete(cn.subs, id)
		close(ch)
	}
}
