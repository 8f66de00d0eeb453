package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"

	"github.com/chordpad/draftstore/pkg/logger"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultRetries   = 3
	DefaultRetryBase = 500 * time.Millisecond
)

// Options tunes the websocket client.
type Options struct {
	// Timeout bounds each individual request, not the whole retry loop.
	Timeout time.Duration

	// Retries is the total number of push attempts before giving up.
	Retries int

	// RetryBase is the first backoff delay; it doubles per attempt.
	RetryBase time.Duration

	Logger logger.Logger
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.RetryBase <= 0 {
		o.RetryBase = DefaultRetryBase
	}
}

type request struct {
	ID     string          `cbor:"id"`
	Method string          `cbor:"method"`
	Params cbor.RawMessage `cbor:"params"`
}

type response struct {
	ID     string          `cbor:"id"`
	Result cbor.RawMessage `cbor:"result,omitempty"`
	Error  *responseError  `cbor:"error,omitempty"`
}

type responseError struct {
	Code    int    `cbor:"code"`
	Message string `cbor:"message"`
}

func (e *responseError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

type pushParams struct {
	DocumentID string `cbor:"document_id"`
	Content    string `cbor:"content"`
}

type fetchParams struct {
	DocumentID string `cbor:"document_id"`
}

// Client speaks CBOR frames over a single websocket to the document
// service, correlating responses to requests by id. It implements Pusher
// and Fetcher.
type Client struct {
	conn *websocket.Conn
	opts Options

	writeMu sync.Mutex

	respMu sync.Mutex
	resp   map[string]chan response

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Dial connects to the document service at url (a ws:// or wss:// endpoint)
// and starts the read loop.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	opts.applyDefaults()
	conn, res, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial document service: %w", err)
	}
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	c := &Client{
		conn:    conn,
		opts:    opts,
		resp:    make(map[string]chan response),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Push uploads content, retrying transient failures with exponential
// backoff. After the bounded attempts it returns an error wrapping ErrSync.
func (c *Client) Push(ctx context.Context, documentID, content string) (Revision, error) {
	var lastErr error
	for attempt := 0; attempt < c.opts.Retries; attempt++ {
		if attempt > 0 {
			backoff := c.opts.RetryBase << (attempt - 1)
			if c.opts.Logger != nil {
				c.opts.Logger.Debug("retrying push", "doc", documentID, "attempt", attempt, "backoff", backoff)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Revision{}, fmt.Errorf("%w: %w", ErrSync, ctx.Err())
			case <-c.closeCh:
				return Revision{}, fmt.Errorf("%w: client closed", ErrSync)
			}
		}

		var rev Revision
		lastErr = c.call(ctx, "push", pushParams{DocumentID: documentID, Content: content}, &rev)
		if lastErr == nil {
			return rev, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return Revision{}, fmt.Errorf("%w: after %d attempts: %w", ErrSync, c.opts.Retries, lastErr)
}

// Fetch retrieves the server head for a document. A single attempt: the
// recovery path has its own fallbacks.
func (c *Client) Fetch(ctx context.Context, documentID string) (Head, error) {
	var head Head
	if err := c.call(ctx, "fetch", fetchParams{DocumentID: documentID}, &head); err != nil {
		return Head{}, fmt.Errorf("%w: %w", ErrSync, err)
	}
	return head, nil
}

func (c *Client) call(ctx context.Context, method string, params, dest any) error {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	select {
	case <-c.closeCh:
		return fmt.Errorf("client closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	rawParams, err := cbor.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}
	id := uuid.Must(uuid.NewV4()).String()
	ch, err := c.createResponseChannel(id)
	if err != nil {
		return err
	}
	defer c.removeResponseChannel(id)

	frame, err := cbor.Marshal(request{ID: id, Method: method, Params: rawParams})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.BinaryMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeCh:
		return fmt.Errorf("client closed")
	case res, open := <-ch:
		if !open {
			return fmt.Errorf("response channel closed")
		}
		if res.Error != nil {
			return res.Error
		}
		if dest == nil || res.Result == nil {
			return nil
		}
		if err := cbor.Unmarshal(res.Result, dest); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
		return nil
	}
}

func (c *Client) createResponseChannel(id string) (chan response, error) {
	c.respMu.Lock()
	defer c.respMu.Unlock()
	if _, ok := c.resp[id]; ok {
		return nil, fmt.Errorf("request id already in use: %s", id)
	}
	ch := make(chan response, 1)
	c.resp[id] = ch
	return ch, nil
}

func (c *Client) removeResponseChannel(id string) {
	c.respMu.Lock()
	defer c.respMu.Unlock()
	delete(c.resp, id)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.opts.Logger != nil {
				c.opts.Logger.Debug("read loop ended", "err", err)
			}
			c.closeOnce.Do(func() { close(c.closeCh) })
			return
		}
		var res response
		if err := cbor.Unmarshal(data, &res); err != nil {
			if c.opts.Logger != nil {
				c.opts.Logger.Warn("dropping undecodable frame", "err", err)
			}
			continue
		}
		c.respMu.Lock()
		ch, ok := c.resp[res.ID]
		c.respMu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- res:
		default:
		}
	}
}

// Close shuts the socket down. In-flight calls fail promptly.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() { close(c.closeCh) })

	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	return c.conn.Close()
}

var (
	_ Pusher  = (*Client)(nil)
	_ Fetcher = (*Client)(nil)
)
