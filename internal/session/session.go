// Package session owns the process-wide token slot.
//
// The Store is the only writer of the token. The gateway reads it through
// Token() at the moment each authenticated request is built, so a login that
// completes while another request is in flight never leaks the old token into
// later requests.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"bullwatch/internal/apierr"
	"bullwatch/internal/logger"
	"bullwatch/internal/models"
	"bullwatch/internal/storage"

	"github.com/go-playground/validator/v10"
)

// Authenticator is the subset of the gateway the store needs.
type Authenticator interface {
	Login(ctx context.Context, creds models.Credentials) (string, error)
	Signup(ctx context.Context, creds models.Credentials) (string, error)
	Me(ctx context.Context) (models.Profile, error)
}

// Store holds the current session.
type Store struct {
	auth     Authenticator
	persist  storage.TokenStore
	validate *validator.Validate
	now      func() time.Time

	mu      sync.RWMutex
	current models.Session

	hookMu  sync.Mutex
	hooks   map[int]func()
	nextHID int
}

// New creates a store and restores a persisted session if there is one.
// persist may be nil, in which case nothing survives a restart.
func New(auth Authenticator, persist storage.TokenStore) *Store {
	s := &Store{
		auth:     auth,
		persist:  persist,
		validate: newValidator(),
		now:      time.Now,
		hooks:    make(map[int]func()),
	}

	if persist != nil {
		sess, ok, err := persist.Load()
		switch {
		case err != nil:
			logger.Warnf("session: could not restore token: %v", err)
		case ok:
			s.current = sess
			logger.Infof("session: restored token for %s", displayEmail(sess.Email))
		}
	}
	return s
}

// Login authenticates and stores the returned token.
func (s *Store) Login(ctx context.Context, email, password string) (models.Session, error) {
	return s.authenticate(ctx, "login", email, password, s.auth.Login)
}

// Signup creates an account and stores the returned token.
func (s *Store) Signup(ctx context.Context, email, password string) (models.Session, error) {
	return s.authenticate(ctx, "signup", email, password, s.auth.Signup)
}

func (s *Store) authenticate(ctx context.Context, op, email, password string,
	call func(context.Context, models.Credentials) (string, error)) (models.Session, error) {

	creds := models.Credentials{Email: strings.TrimSpace(email), Password: password}
	if err := s.checkCredentials(op, creds); err != nil {
		return models.Session{}, err
	}

	token, err := call(ctx, creds)
	if err != nil {
		return models.Session{}, err
	}

	sess := models.Session{Token: token, Email: creds.Email, IssuedAt: s.now()}
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	if s.persist != nil {
		// The in-memory session is authoritative; a failed write only costs a re-login after restart.
		if err := s.persist.Save(sess); err != nil {
			logger.Warnf("session: token not persisted: %v", err)
		}
	}

	logger.Infof("session: %s succeeded for %s", op, displayEmail(sess.Email))
	return sess, nil
}

// Logout clears the token. It is safe to call when already logged out.
func (s *Store) Logout() error {
	s.mu.Lock()
	was := s.current.Valid()
	s.current = models.Session{}
	s.mu.Unlock()

	if was {
		logger.Infof("session: logged out")
	}
	if s.persist != nil {
		return s.persist.Clear()
	}
	return nil
}

// IsAuthenticated reports whether a token is present. It does not ask the backend.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Valid()
}

// Token implements gateway.TokenSource.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token, s.current.Valid()
}

// Current returns a copy of the session.
func (s *Store) Current() (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current.Valid()
}

// Profile asks the backend who the token belongs to.
func (s *Store) Profile(ctx context.Context) (models.Profile, error) {
	p, err := s.auth.Me(ctx)
	if err != nil {
		s.Expire(err)
		return models.Profile{}, err
	}
	return p, nil
}

// Expire handles an error from an authenticated call. When err means the
// token is missing or rejected, the session is cleared and OnExpired hooks
// run. It reports whether that happened. A rejection of a token other than
// the current one is ignored.
func (s *Store) Expire(err error) bool {
	if !apierr.IsUnauthenticated(err) {
		return false
	}
	if sent, ok := apierr.SentToken(err); ok {
		if cur, _ := s.Token(); cur != sent {
			// Rejected token was replaced by a newer login.
			logger.Debugf("session: ignoring rejection of a superseded token")
			return false
		}
	}

	if s.IsAuthenticated() {
		logger.Warnf("session: token rejected by backend, logging out: %v", err)
		if lerr := s.Logout(); lerr != nil {
			logger.Warnf("session: clearing persisted token failed: %v", lerr)
		}
	}

	s.hookMu.Lock()
	hooks := make([]func(), 0, len(s.hooks))
	for _, fn := range s.hooks {
		hooks = append(hooks, fn)
	}
	s.hookMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return true
}

// OnExpired registers fn to run whenever Expire clears the session. This is
// where a view redirects to its login flow.
func (s *Store) OnExpired(fn func()) (cancel func()) {
	s.hookMu.Lock()
	id := s.nextHID
	s.nextHID++
	s.hooks[id] = fn
	s.hookMu.Unlock()

	return func() {
		s.hookMu.Lock()
		delete(s.hooks, id)
		s.hookMu.Unlock()
	}
}

func displayEmail(e string) string {
	if e == "" {
		return "<unknown>"
	}
	return e
}
