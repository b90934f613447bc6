package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}

// Outbox owns all writes to a connection. gorilla connections allow one
// concurrent writer, and both the read loop and notification forwarding
// produce messages.
type Outbox struct {
	conn *websocket.Conn
	ch   chan interface{}
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewOutbox starts the writer goroutine.
func NewOutbox(conn *websocket.Conn, size int) *Outbox {
	o := &Outbox{
		conn: conn,
		ch:   make(chan interface{}, size),
		done: make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *Outbox) run() {
	defer close(o.done)
	for v := range o.ch {
		// A failed write surfaces as a read error in the connection's read loop.
		_ = WriteTyped(o.conn, v)
	}
}

// Send queues v. It reports false when the outbox is closed or full.
func (o *Outbox) Send(v interface{}) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- v:
		return true
	default:
		return false
	}
}

// Event queues a data event.
func (o *Outbox) Event(event Event, requestID string, data interface{}) bool {
	return o.Send(ResponsePayload{Event: event, RequestID: requestID, Data: data})
}

// Error queues an error event.
func (o *Outbox) Error(requestID, code, msg string) bool {
	return o.Send(ErrorResponse{Event: EventError, RequestID: requestID, Code: code, Error: msg})
}

// Close flushes queued messages and stops the writer.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.ch)
	o.mu.Unlock()
	<-o.done
}
