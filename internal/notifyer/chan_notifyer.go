package notifyer

import (
	"sync"
	"sync/atomic"

	"github.com/ylmrx/monyt/internal/models"
)

// ChanNotifyer hands failover events to the sender. The monitor loop must
// never block on it, so a full buffer drops the event.
type ChanNotifyer struct {
	eventChan chan models.FailoverEvent
	closed    atomic.Bool
	closeOnce sync.Once
	mu        sync.RWMutex
	dropped   atomic.Uint64
}

func NewNotifier(buf int) *ChanNotifyer {
	return &ChanNotifyer{
		eventChan: make(chan models.FailoverEvent, buf),
	}
}

func (n *ChanNotifyer) NotifyFailoverEvent(event models.FailoverEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed.Load() {
		return
	}
	select {
	case n.eventChan <- event:
	default:
		n.dropped.Add(1)
	}
}

func (n *ChanNotifyer) Dropped() uint64 {
	return n.dropped.Load()
}

func (n *ChanNotifyer) GetEventChan() <-chan models.FailoverEvent {
	return n.eventChan
}

func (n *ChanNotifyer) Close() {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.closed.Store(true)
		close(n.eventChan)
	})
}
