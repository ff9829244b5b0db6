package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

const defaultSocketBuffer = 256

var errConnectionErrored = errors.New("connection errored")

// ConnectionHandle is the service side of a live connection. It is
// replaced as a whole on reconnect.
type ConnectionHandle struct {
	id uuid.UUID

	toSocket   chan<- json.RawMessage
	fromSocket <-chan json.RawMessage
	errored    <-chan struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// ConnectionInterface is the backend side of a connection: it writes what
// Outbound yields to the socket and hands every inbound item to Deliver.
type ConnectionInterface struct {
	id uuid.UUID

	fromFrontend <-chan json.RawMessage
	toFrontend   chan<- json.RawMessage

	errored     chan struct{}
	erroredOnce sync.Once
	shutdown    <-chan struct{}
}

// NewConnectionHandle creates a connected handle/interface pair.
func NewConnectionHandle() (*ConnectionHandle, *ConnectionInterface) {
	id := uuid.New()
	toSocket := make(chan json.RawMessage, defaultSocketBuffer)
	fromSocket := make(chan json.RawMessage, defaultSocketBuffer)
	errored := make(chan struct{})
	shutdown := make(chan struct{})

	handle := &ConnectionHandle{
		id:         id,
		toSocket:   toSocket,
		fromSocket: fromSocket,
		errored:    errored,
		shutdown:   shutdown,
	}
	iface := &ConnectionInterface{
		id:           id,
		fromFrontend: toSocket,
		toFrontend:   fromSocket,
		errored:      errored,
		shutdown:     shutdown,
	}
	return handle, iface
}

func (h *ConnectionHandle) ID() uuid.UUID {
	return h.id
}

// Send queues raw bytes for the socket. It fails once the backend has
// signalled an error.
func (h *ConnectionHandle) Send(raw json.RawMessage) error {
	select {
	case <-h.errored:
		return errConnectionErrored
	default:
	}
	select {
	case h.toSocket <- raw:
		return nil
	case <-h.errored:
		return errConnectionErrored
	}
}

// Shutdown tells the backend to close the socket.
func (h *ConnectionHandle) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.shutdown)
	})
}

func (i *ConnectionInterface) ID() uuid.UUID {
	return i.id
}

// Outbound yields the messages to write to the socket.
func (i *ConnectionInterface) Outbound() <-chan json.RawMessage {
	return i.fromFrontend
}

// ShutdownRequested is closed when the service drops this connection.
func (i *ConnectionInterface) ShutdownRequested() <-chan struct{} {
	return i.shutdown
}

// Deliver passes an inbound item to the service. It returns false when
// the service no longer listens on this connection.
func (i *ConnectionInterface) Deliver(ctx context.Context, raw json.RawMessage) bool {
	select {
	case i.toFrontend <- raw:
		return true
	case <-i.shutdown:
		return false
	case <-ctx.Done():
		return false
	}
}

// CloseWithError signals the service that the connection is broken.
func (i *ConnectionInterface) CloseWithError() {
	i.erroredOnce.Do(func() {
		close(i.errored)
	})
}

// Connector establishes connections for the service.
type Connector interface {
	// Connect opens the first connection.
	Connect(ctx context.Context) (*ConnectionHandle, error)
	// TryReconnect opens a replacement connection after a failure.
	TryReconnect(ctx context.Context) (*ConnectionHandle, error)
}
