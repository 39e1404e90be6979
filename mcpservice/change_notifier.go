package mcpservice

import "sync"

// ChangeNotifier is a small in-process pub-sub for change events. The tools
// container uses it to tell the dispatcher that the tool list changed so that
// a listChanged notification can be sent to the client.
type ChangeNotifier struct {
	subscribersMu sync.RWMutex
	subscribers   []chan struct{}
	closed        bool
}

// Notify signals every subscriber. Sends never block: a subscriber that has
// not drained its previous signal simply keeps that one, which already tells
// it the list must be re-read.
func (cn *ChangeNotifier) Notify() {
	cn.subscribersMu.RLock()
	defer cn.subscribersMu.RUnlock()

	if cn.closed {
		return
	}
	for _, ch := range cn.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close closes every subscriber channel. Further Notify calls are no-ops.
func (cn *ChangeNotifier) Close() {
	cn.subscribersMu.Lock()
	if cn.closed {
		cn.subscribersMu.Unlock()
		return
	}
	cn.closed = true
	subs := cn.subscribers
	cn.subscribers = nil
	cn.subscribersMu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

// Subscriber returns a channel that receives a signal whenever Notify is
// called. The channel has capacity 1; after Close it is closed.
func (cn *ChangeNotifier) Subscriber() <-chan struct{} {
	cn.subscribersMu.Lock()
	defer cn.subscribersMu.Unlock()

	ch := make(chan struct{}, 1)
	if cn.closed {
		close(ch)
		return ch
	}
	cn.subscribers = append(cn.subscribers, ch)
	return ch
}

// Unsubscribe removes ch from the subscriber set and closes it.
func (cn *ChangeNotifier) Unsubscribe(ch <-chan struct{}) {
	cn.subscribersMu.Lock()
	defer cn.subscribersMu.Unlock()
	for i, sub := range cn.subscribers {
		if sub == ch {
			cn.subscribers = append(cn.subscribers[:i], cn.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}
