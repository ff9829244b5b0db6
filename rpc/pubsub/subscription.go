package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrSubscriptionClosed   = errors.New("subscription closed")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Subscription receives the notifications of one server subscription. Its
// LocalID never changes, even when the server side id is renewed after a
// reconnect.
type Subscription struct {
	localID common.Hash
	ch      chan json.RawMessage
	fan     *fanout
	lagged  atomic.Uint64
}

func (s *Subscription) LocalID() common.Hash {
	return s.localID
}

// Notifications is closed when the subscription ends.
func (s *Subscription) Notifications() <-chan json.RawMessage {
	return s.ch
}

// Recv waits for the next notification.
func (s *Subscription) Recv(ctx context.Context) (json.RawMessage, error) {
	select {
	case item, ok := <-s.ch:
		if !ok {
			return nil, ErrSubscriptionClosed
		}
		return item, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RecvInto waits for the next notification and decodes it into v.
func (s *Subscription) RecvInto(ctx context.Context, v interface{}) error {
	item, err := s.Recv(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(item, v)
}

// Lagged is the number of notifications dropped because this receiver was
// not keeping up.
func (s *Subscription) Lagged() uint64 {
	return s.lagged.Load()
}

// Close detaches this receiver. The server subscription stays alive until
// unsubscribed.
func (s *Subscription) Close() {
	s.fan.remove(s)
}

// fanout delivers notifications to every attached receiver without ever
// blocking the service. Items arriving before the first receiver attaches
// are kept, up to size.
type fanout struct {
	localID common.Hash
	size    int

	mu        sync.Mutex
	receivers map[*Subscription]struct{}
	backlog   []json.RawMessage
	closed    bool
}

func newFanout(localID common.Hash, size int) *fanout {
	return &fanout{
		localID:   localID,
		size:      size,
		receivers: make(map[*Subscription]struct{}),
	}
}

func (f *fanout) send(item json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	if len(f.receivers) == 0 {
		if len(f.backlog) == f.size {
			f.backlog = f.backlog[1:]
		}
		f.backlog = append(f.backlog, item)
		return
	}

	for sub := range f.receivers {
		select {
		case sub.ch <- item:
		default:
			sub.lagged.Add(1)
		}
	}
}

func (f *fanout) subscribe() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := &Subscription{
		localID: f.localID,
		ch:      make(chan json.RawMessage, f.size),
		fan:     f,
	}
	if f.closed {
		close(sub.ch)
		return sub
	}

	for _, item := range f.backlog {
		sub.ch <- item
	}
	f.backlog = nil
	f.receivers[sub] = struct{}{}
	return sub
}

func (f *fanout) remove(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.receivers[sub]; !ok {
		return
	}
	delete(f.receivers, sub)
	close(sub.ch)
}

func (f *fanout) receiverCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.receivers)
}

func (f *fanout) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for sub := range f.receivers {
		close(sub.ch)
	}
	f.receivers = nil
	f.backlog = nil
}
