package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second

	// The rate at which ele-updates will be sent to the client, so as not to overburden.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// The number of pings to tolerate losing before concluding the peer is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// Client publishes updates unidirectionally to a web client via websocket.
type Client[T any] struct {
	updates <-chan T
	ws      *websock
	rootCtx context.Context
}

// NewClient upgrades the request to a websocket and returns a publisher for sending
// updates from the updates chan to it. Items in the updates chan should be idempotent,
// such that intervening updates can be discarded when they are received faster than
// the publication rate, and only the latest one need be sent.
func NewClient[T any](
	updates <-chan T,
	w http.ResponseWriter,
	r *http.Request,
) (*Client[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client.
		return nil, err
	}

	return &Client[T]{
		updates: updates,
		ws:      newWebSocket(ws),
		rootCtx: r.Context(),
	}, nil
}

// Sync publishes incoming updates to the client until it disconnects, the request
// context is cancelled, or an unexpected error occurs. The websocket is closed on return.
// A normal closure by the client is not an error.
func (cli *Client[T]) Sync() error {
	defer cli.ws.Close()

	group, groupCtx := errgroup.WithContext(cli.rootCtx)
	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})
	// Unblocks the reader once any of the others fail.
	group.Go(func() error {
		<-groupCtx.Done()
		_ = cli.ws.Conn().SetReadDeadline(time.Now())
		return nil
	})

	if err := group.Wait(); err != nil && !isClosure(err) {
		return err
	}
	return nil
}

var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// pingPong runs the client liveness check.
// The pong handler is only called while readMessages is running.
func (cli *Client[T]) pingPong(ctx context.Context) error {
	pong := make(chan struct{})
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		case <-ctx.Done():
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *Client[T]) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			if err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				err = fmt.Errorf("ping failed: %w", err)
			}
			return
		})
}

// readMessages monitors for messages from the client, which are discarded.
// Errors returned by websocket Read methods are permanent, hence any error
// must trigger full teardown.
func (cli *Client[T]) readMessages(ctx context.Context) error {
	for {
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) (readErr error) {
				_, _, readErr = ws.ReadMessage()
				return
			})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// publish sends the latest update once per pubResolution. Updates arriving in between
// replace the pending one, so the last update is always delivered.
func (cli *Client[T]) publish(ctx context.Context) error {
	ticker := channerics.NewTicker(ctx.Done(), pubResolution)
	updates := cli.updates
	var pending *T

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				// Flush whatever is pending on the next tick, then stop.
				updates = nil
				if pending == nil {
					return nil
				}
				continue
			}
			pending = &update
		case <-ticker:
			if pending == nil {
				continue
			}
			if err := cli.write(ctx, *pending); err != nil {
				return err
			}
			pending = nil
			if updates == nil {
				return nil
			}
		}
	}
}

func (cli *Client[T]) write(ctx context.Context, update T) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (writeErr error) {
			if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
				return fmt.Errorf("failed to set deadline: %w", writeErr)
			}
			if writeErr = ws.WriteJSON(update); writeErr != nil {
				writeErr = fmt.Errorf("publish failed: %w", writeErr)
			}
			return
		})
}

// isClosure reports whether err is the client closing the connection normally.
func isClosure(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
}

// ErrSockCongestion indicates there are too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

const writeDeadline = time.Second

// websock serializes reads and writes to the websocket, whose requirements
// are that there may be only one concurrent reader and writer at a time.
type websock struct {
	// These are merely mutexes, but channel semantics are cleaner.
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebSocket(ws *websocket.Conn) *websock {
	return &websock{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Conn returns the underlying websocket.
// This should only be used non-concurrently for setup, e.g. adding handlers.
func (sock *websock) Conn() *websocket.Conn {
	return sock.ws
}

// Close sends a close message and closes the websocket.
// This should only be called once no further readers or writers exist.
func (sock *websock) Close() {
	sock.readSem <- struct{}{}
	sock.writeSem <- struct{}{}

	_ = sock.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	sock.ws.Close()
}

// Read serializes read operations on the internal web socket. There is a single reader,
// which may block for as long as the client is silent.
func (sock *websock) Read(
	ctx context.Context,
	readFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.readSem <- struct{}{}:
		defer func() { <-sock.readSem }()
		return readFn(sock.ws)
	}
}

// Write serializes write operations to the websocket.
func (sock *websock) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
