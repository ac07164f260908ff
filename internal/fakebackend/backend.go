package fakebackend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NemnemForStudy/WeEveryTrip-sub000/jwt"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/middleware"
	"github.com/NemnemForStudy/WeEveryTrip-sub000/refresh"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

var errRevoked = errors.New("access token revoked")

// Options configures a Backend.
type Options struct {
	AccessTTL time.Duration
	Secret    []byte
	// RefreshLatency delays every refresh response.
	RefreshLatency time.Duration
}

// Stats are request counters since start.
type Stats struct {
	RefreshCalls int64
	APICalls     int64
	Unauthorized int64
	ReuseRevoked int64
}

// Backend is an in-memory diary API with rotating refresh tokens. A refresh
// token is valid exactly once; presenting a rotated-out token revokes the
// whole session.
type Backend struct {
	mgr  *jwt.Manager
	opts Options

	mu       sync.Mutex
	refresh  map[string]string // refresh token -> session id
	retired  map[string]string // rotated-out refresh token -> session id
	sessions map[string]string // session id -> user id
	revoked  map[string]bool   // access tokens

	refreshStatus atomic.Int32
	denyAll       atomic.Bool

	refreshCalls atomic.Int64
	apiCalls     atomic.Int64
	unauthorized atomic.Int64
	reuseRevoked atomic.Int64
}

func New(opts Options) (*Backend, error) {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = time.Minute
	}
	if len(opts.Secret) == 0 {
		opts.Secret = []byte(uuid.NewString())
	}
	mgr, err := jwt.NewManager(jwt.Config{
		AccessTTL:     opts.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    opts.Secret,
		Issuer:        "weeverytrip-fake",
	})
	if err != nil {
		return nil, err
	}
	return &Backend{
		mgr:      mgr,
		opts:     opts,
		refresh:  make(map[string]string),
		retired:  make(map[string]string),
		sessions: make(map[string]string),
		revoked:  make(map[string]bool),
	}, nil
}

// Handler returns the HTTP API.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(b.countUnauthorized)

	r.Post(refresh.DefaultPath, b.handleRefresh)
	r.Group(func(r chi.Router) {
		r.Use(b.countAPI)
		r.Use(b.denyAllMiddleware)
		r.Use(middleware.Guard(b.validate))
		r.Get("/api/posts", b.handleListPosts)
		r.Post("/api/posts", b.handleCreatePost)
	})
	return r
}

// Login starts a session for uid and returns its first pair.
func (b *Backend) Login(uid string) (access, refreshToken string, err error) {
	sid := uuid.NewString()
	access, err = b.mgr.CreateAccess(uid, sid)
	if err != nil {
		return "", "", err
	}
	refreshToken = uuid.NewString()

	b.mu.Lock()
	b.sessions[sid] = uid
	b.refresh[refreshToken] = sid
	b.mu.Unlock()
	return access, refreshToken, nil
}

// RevokeAccess makes one access token fail validation, as if it had expired.
func (b *Backend) RevokeAccess(token string) {
	b.mu.Lock()
	b.revoked[token] = true
	b.mu.Unlock()
}

// SetRefreshStatus forces the refresh endpoint to answer with code. Zero
// restores normal behavior.
func (b *Backend) SetRefreshStatus(code int) {
	b.refreshStatus.Store(int32(code))
}

// SetDenyAll makes every API call answer 401 regardless of the token.
func (b *Backend) SetDenyAll(deny bool) {
	b.denyAll.Store(deny)
}

func (b *Backend) Stats() Stats {
	return Stats{
		RefreshCalls: b.refreshCalls.Load(),
		APICalls:     b.apiCalls.Load(),
		Unauthorized: b.unauthorized.Load(),
		ReuseRevoked: b.reuseRevoked.Load(),
	}
}

func (b *Backend) validate(_ context.Context, token string) (*jwt.AccessClaims, error) {
	claims, err := b.mgr.ParseAccess(token)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revoked[token] {
		return nil, errRevoked
	}
	if _, ok := b.sessions[claims.SID]; !ok {
		return nil, errRevoked
	}
	return claims, nil
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	if b.opts.RefreshLatency > 0 {
		time.Sleep(b.opts.RefreshLatency)
	}
	if code := int(b.refreshStatus.Load()); code != 0 {
		http.Error(w, http.StatusText(code), code)
		return
	}

	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	presented := header[len(prefix):]

	b.mu.Lock()
	sid, ok := b.refresh[presented]
	if !ok {
		if reusedSID, reused := b.retired[presented]; reused {
			delete(b.sessions, reusedSID)
			b.reuseRevoked.Add(1)
		}
		b.mu.Unlock()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	uid := b.sessions[sid]
	next := uuid.NewString()
	delete(b.refresh, presented)
	b.retired[presented] = sid
	b.refresh[next] = sid
	b.mu.Unlock()

	access, err := b.mgr.CreateAccess(uid, sid)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, refresh.Pair{AccessToken: access, RefreshToken: next})
}

type post struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Title  string `json:"title"`
}

func (b *Backend) handleListPosts(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, []post{{ID: "p1", Author: claims.UID, Title: "Jeju in spring"}})
}

func (b *Backend) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	var in post
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&in); err != nil || in.Title == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	in.ID = uuid.NewString()
	in.Author = claims.UID
	writeJSON(w, http.StatusCreated, in)
}

func (b *Backend) denyAllMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.denyAll.Load() {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) countAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.apiCalls.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) countUnauthorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() == http.StatusUnauthorized {
			b.unauthorized.Add(1)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
