package ws

import (
	"context"
	"errors"
	"sync"

	"svyaz/internal/models"
	"svyaz/internal/observability"
)

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
}

type messageHub interface {
	Join(userID string) chan models.Frame
	Leave(userID string, ch chan models.Frame)
	Dispatch(userID string, from chan models.Frame, frame models.Frame)
}

// Connection is one socket of a user. A user may hold several at once.
type Connection struct {
	ws         wsConnection
	hub        messageHub
	userID     string
	fromClient chan models.Frame
	fromServer chan models.Frame
	errorCh    chan error
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	userID string,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		userID:     userID,
		fromClient: make(chan models.Frame),
		fromServer: hub.Join(userID),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	observability.IncWSActive()
	defer func() {
		observability.DecWSActive()
		c.hub.Leave(c.userID, c.fromServer)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpFrames(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	// The first loop to stop reports why; cancellation makes mainLoop return nil.
	err := <-c.errorCh
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpFrames(ctx context.Context) error {
	for {
		var frame models.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return err
		}
		select {
		case c.fromClient <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case frame := <-c.fromClient:
			observability.IncWSEvent("in", frame.Event)
			c.hub.Dispatch(c.userID, c.fromServer, frame)
		case frame, ok := <-c.fromServer:
			if !ok {
				return errors.New("connection evicted")
			}
			if err := c.ws.WriteJSON(frame); err != nil {
				return err
			}
			observability.IncWSEvent("out", frame.Event)
		case <-ctx.Done():
			return nil
		}
	}
}
