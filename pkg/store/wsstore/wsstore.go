// Package wsstore implements store.Store against a relay server reached
// over WebSocket. Requests and notifications are CBOR messages (see
// [Request] and [Response]); contrib/relay is the matching server.
//
// Snapshots are delivered on the connection's read goroutine in the order
// the relay sent them. Subscription callbacks may call Unsubscribe but must
// not wait for other store calls to finish.
//
// When the connection drops, in-flight requests fail with
// constants.ErrRemoteUnavailable, every subscription is told through its
// error callback, and the store reconnects in the background following its
// retry policy. Subscriptions are re-established after a reconnect and
// resume with a fresh full snapshot.
package wsstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/tonehq/tonesync/internal/rand"
	"github.com/tonehq/tonesync/internal/retry"
	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/logger"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
)

// DefaultTimeout bounds one request when the context has no deadline.
const DefaultTimeout = 30 * time.Second

var DefaultDialer = &gorilla.Dialer{
	Proxy:             http.ProxyFromEnvironment,
	HandshakeTimeout:  10 * time.Second,
	EnableCompression: true,
	Subprotocols:      []string{Subprotocol},
}

type Option func(*Store)

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithToken authenticates every connection with token.
func WithToken(token string) Option {
	return func(s *Store) {
		s.token = token
	}
}

// WithRetry sets the reconnect policy. A nil policy disables reconnects.
func WithRetry(p retry.Policy) Option {
	return func(s *Store) {
		s.retry = p
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

type Store struct {
	url     string
	codec   *Codec
	log     logger.Logger
	token   string
	retry   retry.Policy
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *gorilla.Conn
	userID  string
	pending map[string]chan Response
	subs    map[string]*subscription
	closed  bool
	done    chan struct{}
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Getter = (*Store)(nil)
)

// Dial connects to the relay at url, e.g. ws://localhost:8080/rpc. The
// first connection must succeed; later ones are retried.
func Dial(ctx context.Context, url string, opts ...Option) (*Store, error) {
	s := &Store{
		url:     url,
		codec:   NewCodec(),
		log:     logger.Nop(),
		retry:   retry.DefaultBackoff(),
		timeout: DefaultTimeout,
		pending: make(map[string]chan Response),
		subs:    make(map[string]*subscription),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// UserID returns the user the relay authenticated, if any.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	s.conn = nil
	pending := s.pending
	s.pending = make(map[string]chan Response)
	s.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = conn.WriteControl(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return conn.Close()
}

func (s *Store) connect(ctx context.Context) error {
	conn, res, err := DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", constants.ErrRemoteUnavailable, s.url, err)
	}
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return constants.ErrClosed
	}
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(conn)

	if s.token != "" {
		res, err := s.call(ctx, MethodAuthenticate, Params{Token: s.token})
		if err != nil {
			s.discard(conn)
			return err
		}
		s.mu.Lock()
		if res.Result != nil {
			s.userID = res.Result.UserID
		}
		s.mu.Unlock()
	}

	s.log.Info("wsstore: connected", "url", s.url)
	return nil
}

func (s *Store) CreateDocument(ctx context.Context, collection, id string, fields models.Document) error {
	_, err := s.call(ctx, MethodCreate, Params{Collection: collection, ID: id, Fields: fields})
	return err
}

func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields models.Document) error {
	_, err := s.call(ctx, MethodUpdate, Params{Collection: collection, ID: id, Fields: fields})
	return err
}

func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	_, err := s.call(ctx, MethodDelete, Params{Collection: collection, ID: id})
	return err
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (models.Document, error) {
	res, err := s.call(ctx, MethodGet, Params{Collection: collection, ID: id})
	if err != nil {
		return nil, err
	}
	if res.Result == nil || res.Result.Doc == nil {
		return nil, fmt.Errorf("%w: %s/%s", constants.ErrNotFound, collection, id)
	}
	return res.Result.Doc, nil
}

// call sends one request and waits for its response.
func (s *Store) call(ctx context.Context, method string, params Params) (Response, error) {
	if _, ok := ctx.Deadline(); !ok && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	id := rand.NewID()
	ch := make(chan Response, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Response{}, constants.ErrClosed
	}
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return Response{}, fmt.Errorf("%w: %s: not connected", constants.ErrRemoteUnavailable, method)
	}
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.write(conn, Request{ID: id, Method: method, Params: params}); err != nil {
		return Response{}, err
	}

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("%w: %s: %w", constants.ErrRemoteUnavailable, method, ctx.Err())
	case res, ok := <-ch:
		if !ok {
			return Response{}, fmt.Errorf("%w: %s: connection lost", constants.ErrRemoteUnavailable, method)
		}
		if res.Error != nil {
			return res, res.Error
		}
		return res, nil
	}
}

func (s *Store) write(conn *gorilla.Conn, req Request) error {
	data, err := s.codec.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", constants.ErrInvalidDocument, req.Method, err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(gorilla.BinaryMessage, data); err != nil {
		return fmt.Errorf("%w: write %s: %v", constants.ErrRemoteUnavailable, req.Method, err)
	}
	return nil
}

func (s *Store) readLoop(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.drop(conn, err)
			return
		}
		var res Response
		if err := s.codec.Unmarshal(data, &res); err != nil {
			s.log.Error("wsstore: undecodable message", "error", err)
			continue
		}
		s.dispatch(res)
	}
}

func (s *Store) dispatch(res Response) {
	if res.ID != "" {
		s.mu.Lock()
		ch, ok := s.pending[res.ID]
		delete(s.pending, res.ID)
		s.mu.Unlock()
		if !ok {
			s.log.Warn("wsstore: response for unknown request", "id", res.ID)
			return
		}
		ch <- res
		return
	}

	n := res.Notification
	if n == nil {
		if res.Error != nil {
			s.log.Error("wsstore: error without request id", "error", res.Error)
		}
		return
	}
	s.mu.Lock()
	sub, ok := s.subs[n.Subscription]
	s.mu.Unlock()
	if !ok {
		return
	}
	if n.Error != nil {
		sub.fail(n.Error)
		return
	}
	sub.deliver(n.Docs)
}

// discard forgets conn without reconnecting. The read loop's own failure
// then finds a different connection and does nothing.
func (s *Store) discard(conn *gorilla.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

// drop tears down conn after a read failure and starts reconnecting
// unless the store was closed.
func (s *Store) drop(conn *gorilla.Conn, cause error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	closed := s.closed
	pending := s.pending
	s.pending = make(map[string]chan Response)
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	_ = conn.Close()
	for _, ch := range pending {
		close(ch)
	}
	if closed {
		return
	}

	var netErr net.Error
	if errors.As(cause, &netErr) || gorilla.IsUnexpectedCloseError(cause) {
		s.log.Warn("wsstore: connection lost", "error", cause)
	} else {
		s.log.Info("wsstore: connection closed", "error", cause)
	}
	lost := fmt.Errorf("%w: connection lost: %v", constants.ErrRemoteUnavailable, cause)
	for _, sub := range subs {
		sub.fail(lost)
	}

	if s.retry != nil {
		go s.reconnect()
	}
}

func (s *Store) reconnect() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		if err := s.connect(ctx); err != nil {
			s.log.Debug("wsstore: reconnect failed", "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		s.log.Error("wsstore: giving up reconnecting", "url", s.url, "error", err)
		return
	}

	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		if err := s.resubscribe(ctx, sub); err != nil {
			sub.fail(err)
		}
	}
}
