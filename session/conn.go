package session

import (
	"context"
	"errors"
)

// MessageType is a connection frame type. The values match RFC 6455 opcodes.
type MessageType int

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

// Conn is one client connection. ReadMessage is called from a single reader
// goroutine and WriteJSON only from the session goroutine. The caller closes
// the underlying connection after Serve returns, which also unblocks the
// reader.
type Conn interface {
	ReadMessage() (MessageType, []byte, error)
	WriteJSON(v any) error
}

// ErrDisconnected is the cancellation cause once the client is gone.
var ErrDisconnected = errors.New("session: client disconnected")

type inbound struct {
	typ  MessageType
	data []byte
}

// reader pumps client messages to a channel in its own goroutine. A read
// error cancels the session with ErrDisconnected.
type reader struct {
	messages chan inbound
}

func startReader(ctx context.Context, cancel context.CancelCauseFunc, conn Conn) *reader {
	r := &reader{messages: make(chan inbound, 1)}
	go func() {
		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				cancel(ErrDisconnected)
				return
			}
			select {
			case r.messages <- inbound{typ: typ, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return r
}

// next waits for the next client message.
func (r *reader) next(ctx context.Context) (inbound, error) {
	select {
	case m := <-r.messages:
		return m, nil
	case <-ctx.Done():
		return inbound{}, context.Cause(ctx)
	}
}
