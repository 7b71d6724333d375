package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"euphoria.io/scope"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cosmicwatch.io/sector/proto"
	"cosmicwatch.io/sector/proto/logging"
)

var logWriter io.Writer = os.Stdout

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	return strings.TrimPrefix(u.Host, "www.") == r.Host
}

type Server struct {
	r       *mux.Router
	b       proto.Backend
	hub     *Hub
	sc      *securecookie.SecureCookie
	rootCtx scope.Context
	version string
}

func NewServer(ctx scope.Context, b proto.Backend, cookieSecret []byte, version string) *Server {
	s := &Server{
		b:       b,
		hub:     NewHub(b),
		sc:      securecookie.New(cookieSecret, nil),
		rootCtx: ctx,
		version: version,
	}
	s.route()
	return s
}

func (s *Server) route() {
	s.r = mux.NewRouter().StrictSlash(true)
	s.r.Path("/").Methods("OPTIONS").HandlerFunc(s.handleProbe)
	s.r.Path("/metrics").Handler(promhttp.Handler())
	s.r.HandleFunc("/ws", s.handleWebsocket)
	s.r.Path("/api/messages").Methods("GET").HandlerFunc(s.handleListing)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.version != "" {
		w.Header().Set("X-Sector-Version", s.version)
	}
	s.r.ServeHTTP(w, r)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleListing serves the one-time REST backlog fetch, in the same
// shape as the snapshot event's log. Clients use it for an initial
// paint before their channel connects.
func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	ctx := s.rootCtx.Fork()

	msgs, err := s.hub.Listing(ctx)
	if err != nil {
		logging.Logger(ctx).Printf("listing error: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(msgs); err != nil {
		logging.Logger(ctx).Printf("listing encode error: %s", err)
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ctx := s.rootCtx.Fork()

	// Resolve the authenticated identity. We use an authenticated but
	// un-encrypted cookie; anonymous visitors are tagged on the spot.
	identity, cookie, err := getIdentity(ctx, s, r)
	if err != nil {
		logging.Logger(ctx).Printf("get identity error: %s", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	headers := http.Header{}
	if cookie != nil {
		headers.Add("Set-Cookie", cookie.String())
	}
	conn, err := upgrader.Upgrade(w, r, headers)
	if err != nil {
		logging.Logger(ctx).Printf("upgrade error: %s", err)
		return
	}
	defer conn.Close()

	session, err := newSession(ctx, s.hub, conn, identity, s.version)
	if err != nil {
		logging.Logger(ctx).Printf("session error: %s", err)
		return
	}

	s.hub.Join(ctx, session)
	defer s.hub.Part(ctx, session)

	if err := session.serve(); err != nil {
		logging.Logger(ctx).Printf("session serve ended: %s", err)
	}
}
