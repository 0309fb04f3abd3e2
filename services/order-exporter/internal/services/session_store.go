package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/woocommerce"
	"github.com/nimeshabuddhika/woo-order-exporter/services/order-exporter/internal/observability"
	"go.uber.org/zap"
)

const DefaultSessionTTL = time.Hour

type SessionStoreConfig struct {
	Fetcher Fetcher
	Logger  *zap.Logger
	TTL     time.Duration // idle sessions older than this are dropped
	Now     func() time.Time
}

// SessionStore keeps sessions in memory, keyed by uuid. Expired sessions are swept lazily.
type SessionStore struct {
	cfg      SessionStoreConfig
	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func NewSessionStore(cfg SessionStoreConfig) *SessionStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &SessionStore{cfg: cfg, sessions: make(map[string]*Session)}
}

func (st *SessionStore) Create() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()

	s := newSession(uuid.NewString(), st.cfg.Fetcher, st.cfg.Logger, st.cfg.Now)
	st.sessions[s.id] = s
	observability.ActiveSessions.Set(float64(len(st.sessions)))
	st.cfg.Logger.Info("session_created", zap.String(pkg.SessionId, s.id))
	return s
}

func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()

	s, ok := st.sessions[id]
	if !ok {
		return nil, pkg.NewAppError(pkg.ErrSessionNotFoundCode, pkg.ErrSessionNotFoundCode.Message, pkg.ErrSessionNotFound)
	}
	s.touch()
	return s, nil
}

func (st *SessionStore) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return pkg.NewAppError(pkg.ErrSessionNotFoundCode, pkg.ErrSessionNotFoundCode.Message, pkg.ErrSessionNotFound)
	}
	delete(st.sessions, id)
	observability.ActiveSessions.Set(float64(len(st.sessions)))
	st.cfg.Logger.Info("session_deleted", zap.String(pkg.SessionId, id))
	return nil
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// FetchAsync claims the session and runs the fetch in the background under ctx.
// A fetch already in flight is reported synchronously.
func (st *SessionStore) FetchAsync(ctx context.Context, s *Session, req woocommerce.FetchRequest) error {
	if err := s.begin(); err != nil {
		return err
	}
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		_ = s.run(ctx, req) // recorded on the session
	}()
	return nil
}

// Wait blocks until background fetches have returned.
func (st *SessionStore) Wait() {
	st.wg.Wait()
}

func (st *SessionStore) sweepLocked() {
	now := st.cfg.Now()
	for id, s := range st.sessions {
		if s.expired(now, st.cfg.TTL) {
			delete(st.sessions, id)
			st.cfg.Logger.Info("session_expired", zap.String(pkg.SessionId, id))
		}
	}
	observability.ActiveSessions.Set(float64(len(st.sessions)))
}
