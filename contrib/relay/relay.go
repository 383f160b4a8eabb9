// Package relay serves any store.Store to wsstore clients over WebSocket.
//
// Each connection gets its own subscriptions, which end when the
// connection closes. With a verifier configured, a connection must
// authenticate before anything else and may then only subscribe to its
// own documents and write documents it owns. Updates and deletes are
// checked against the owner of the stored record, and a create may not
// replace a record owned by someone else.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	gorilla "github.com/gorilla/websocket"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/logger"
	"github.com/tonehq/tonesync/pkg/models"
	"github.com/tonehq/tonesync/pkg/store"
	"github.com/tonehq/tonesync/pkg/store/wsstore"
)

// Verifier turns a token into the user it was issued to.
type Verifier func(token string) (models.User, error)

// Backend is a store the relay can serve. GetDocument is used to check
// record ownership.
type Backend interface {
	store.Store
	store.Getter
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithVerifier requires connections to authenticate.
func WithVerifier(v Verifier) Option {
	return func(s *Server) {
		s.verify = v
	}
}

// WithRequestTimeout bounds every backing store call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

type Server struct {
	store   Backend
	verify  Verifier
	log     logger.Logger
	timeout time.Duration
	codec   *wsstore.Codec

	upgrader gorilla.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
}

func New(st Backend, opts ...Option) *Server {
	s := &Server{
		store:   st,
		log:     logger.Nop(),
		timeout: constants.DefaultPersistTimeout,
		codec:   wsstore.NewCodec(),
		upgrader: gorilla.Upgrader{
			Subprotocols:      []string{wsstore.Subprotocol},
			EnableCompression: true,
			CheckOrigin:       func(*http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router serves the RPC endpoint at /rpc and a liveness check at /healthz.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/rpc", s.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

// Connections returns the number of open client connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("relay: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &conn{
		server: s,
		ws:     ws,
		subs:   make(map[string]store.Subscription),
	}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.log.Debug("relay: client connected", "remote", r.RemoteAddr)
	c.serve()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.log.Debug("relay: client disconnected", "remote", r.RemoteAddr)
}

type conn struct {
	server *Server
	ws     *gorilla.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	userID string
	authed bool
	subs   map[string]store.Subscription
}

func (c *conn) serve() {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		c.closeSubscriptions()
		_ = c.ws.Close()
	}()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				c.server.log.Warn("relay: read failed", "error", err)
			}
			return
		}
		var req wsstore.Request
		if err := c.server.codec.Unmarshal(data, &req); err != nil {
			c.send(wsstore.Response{Error: &wsstore.RPCError{Code: wsstore.CodeInvalidRequest, Message: "undecodable request"}})
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.handle(req)
		}()
	}
}

func (c *conn) handle(req wsstore.Request) {
	res, err := c.dispatch(req)
	if err != nil {
		c.server.log.Debug("relay: request failed", "method", req.Method, "error", err)
		c.send(wsstore.Response{ID: req.ID, Error: wsstore.NewRPCError(err)})
		return
	}
	c.send(wsstore.Response{ID: req.ID, Result: res})
}

func (c *conn) dispatch(req wsstore.Request) (*wsstore.Result, error) {
	if req.Method == wsstore.MethodAuthenticate {
		return c.authenticate(req.Params.Token)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.server.timeout)
	defer cancel()
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	p := req.Params
	switch req.Method {
	case wsstore.MethodCreate:
		return &wsstore.Result{}, c.server.store.CreateDocument(ctx, p.Collection, p.ID, p.Fields)
	case wsstore.MethodUpdate:
		return &wsstore.Result{}, c.server.store.UpdateDocument(ctx, p.Collection, p.ID, p.Fields)
	case wsstore.MethodDelete:
		return &wsstore.Result{}, c.server.store.DeleteDocument(ctx, p.Collection, p.ID)
	case wsstore.MethodGet:
		doc, err := c.server.store.GetDocument(ctx, p.Collection, p.ID)
		if err != nil {
			return nil, err
		}
		return &wsstore.Result{Doc: doc}, nil
	case wsstore.MethodSubscribe:
		return c.subscribe(ctx, p)
	case wsstore.MethodUnsubscribe:
		c.unsubscribe(p.Subscription)
		return &wsstore.Result{Subscription: p.Subscription}, nil
	default:
		return nil, &wsstore.RPCError{Code: wsstore.CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

func (c *conn) authenticate(token string) (*wsstore.Result, error) {
	if c.server.verify == nil {
		return &wsstore.Result{}, nil
	}
	u, err := c.server.verify(token)
	if err != nil {
		if !errors.Is(err, constants.ErrNotAuthenticated) {
			err = fmt.Errorf("%w: %v", constants.ErrNotAuthenticated, err)
		}
		return nil, err
	}
	c.mu.Lock()
	c.userID = u.ID
	c.authed = true
	c.mu.Unlock()
	return &wsstore.Result{UserID: u.ID}, nil
}

// authorize checks the request against the authenticated user. Without a
// verifier every request is allowed.
func (c *conn) authorize(ctx context.Context, req wsstore.Request) error {
	if c.server.verify == nil {
		return nil
	}
	c.mu.Lock()
	authed, userID := c.authed, c.userID
	c.mu.Unlock()
	if !authed {
		return fmt.Errorf("%w: authenticate first", constants.ErrNotAuthenticated)
	}

	switch req.Method {
	case wsstore.MethodSubscribe:
		if req.Params.OwnerID != userID {
			return fmt.Errorf("%w: cannot read documents of %q", constants.ErrPermissionDenied, req.Params.OwnerID)
		}
	case wsstore.MethodCreate, wsstore.MethodUpdate:
		owner, present := req.Params.Fields[models.FieldUserID]
		if req.Method == wsstore.MethodCreate || present {
			if s, _ := owner.(string); s != userID {
				return fmt.Errorf("%w: cannot write documents of %v", constants.ErrPermissionDenied, owner)
			}
		}
		return c.checkOwner(ctx, req.Params.Collection, req.Params.ID, userID)
	case wsstore.MethodDelete, wsstore.MethodGet:
		return c.checkOwner(ctx, req.Params.Collection, req.Params.ID, userID)
	}
	return nil
}

// checkOwner fails unless the stored record is missing or owned by userID.
// A missing record is left to the store: create inserts it, update
// reports ErrNotFound and delete does nothing.
func (c *conn) checkOwner(ctx context.Context, collection, id, userID string) error {
	doc, err := c.server.store.GetDocument(ctx, collection, id)
	switch {
	case errors.Is(err, constants.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	if owner, _ := doc[models.FieldUserID].(string); owner != userID {
		return fmt.Errorf("%w: %s/%s belongs to another user", constants.ErrPermissionDenied, collection, id)
	}
	return nil
}

func (c *conn) subscribe(ctx context.Context, p wsstore.Params) (*wsstore.Result, error) {
	if p.Subscription == "" {
		return nil, &wsstore.RPCError{Code: wsstore.CodeInvalidRequest, Message: "missing subscription id"}
	}
	// A repeated id replaces the earlier subscription, which is what a
	// client does after reconnecting.
	c.unsubscribe(p.Subscription)

	id := p.Subscription
	q := store.Query{Collection: p.Collection, OwnerID: p.OwnerID, OrderBy: p.OrderBy}
	sub, err := c.server.store.SubscribeQuery(ctx, q,
		func(docs []models.Document) {
			c.send(wsstore.Response{Notification: &wsstore.Notification{Subscription: id, Docs: docs}})
		},
		func(err error) {
			c.send(wsstore.Response{Notification: &wsstore.Notification{Subscription: id, Error: wsstore.NewRPCError(err)}})
		},
	)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()
	return &wsstore.Result{Subscription: id}, nil
}

func (c *conn) unsubscribe(id string) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		sub.Unsubscribe()
	}
}

func (c *conn) closeSubscriptions() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]store.Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func (c *conn) send(res wsstore.Response) {
	data, err := c.server.codec.Marshal(res)
	if err != nil {
		c.server.log.Error("relay: encode failed", "error", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.ws.WriteMessage(gorilla.BinaryMessage, data); err != nil {
		c.server.log.Debug("relay: write failed", "error", err)
	}
}
