package transport

import (
	"context"
	"errors"
	"sync"

	"svyaz/internal/models"
)

type writeRequest struct {
	frame  models.Frame
	result chan error // nil for fire-and-forget writes
}

// connection owns one websocket: a reader pumping inbound frames to the
// dispatch callback and a writer serializing outbound frames.
type connection struct {
	ws       Conn
	userID   string
	outgoing chan writeRequest
	errorCh  chan error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	reason string
}

func newConnection(ws Conn, userID string) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		ws:       ws,
		userID:   userID,
		outgoing: make(chan writeRequest, 64),
		errorCh:  make(chan error, 2),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// handle runs until the socket fails or stop is called. It returns the
// error that ended the connection, or nil after an intentional stop.
// The connect event is dispatched on the reader goroutine once the writer
// runs, so its handlers may Emit.
func (c *connection) handle(dispatch func(models.Frame)) error {
	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.writeLoop()
		c.cancel()
	})

	wg.Go(func() {
		dispatch(models.Frame{Event: models.EventConnect})
		c.errorCh <- c.pumpFrames(dispatch)
		c.cancel()
	})

	// stop cancels the context, so writeLoop always reports.
	err := <-c.errorCh
	c.ws.Close()
	wg.Wait()

	if c.stopped() {
		return nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *connection) pumpFrames(dispatch func(models.Frame)) error {
	for {
		var frame models.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return err
		}
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}
		dispatch(frame)
	}
}

func (c *connection) writeLoop() error {
	for {
		select {
		case req := <-c.outgoing:
			err := c.ws.WriteJSON(req.frame)
			if req.result != nil {
				req.result <- err
			}
			if err != nil {
				return err
			}
		case <-c.ctx.Done():
			return nil
		}
	}
}

// stop closes the connection on purpose; reason ends up in the disconnect event.
func (c *connection) stop(reason string) {
	c.mu.Lock()
	if c.reason == "" {
		c.reason = reason
	}
	c.mu.Unlock()
	c.cancel()
	c.ws.Close()
}

func (c *connection) stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason != ""
}

func (c *connection) stopReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *connection) write(ctx context.Context, frame models.Frame) error {
	req := writeRequest{frame: frame, result: make(chan error, 1)}
	select {
	case c.outgoing <- req:
	case <-c.ctx.Done():
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-c.ctx.Done():
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *connection) post(frame models.Frame) error {
	select {
	case c.outgoing <- writeRequest{frame: frame}:
		return nil
	case <-c.ctx.Done():
		return ErrNotConnected
	}
}
