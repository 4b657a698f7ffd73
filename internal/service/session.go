package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/basel-ax/imagestudio/internal/infrastructure/backend"
	"github.com/basel-ax/imagestudio/internal/notify"
	"github.com/basel-ax/imagestudio/internal/repository"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// SessionService logs in against the backend and keeps the bearer token in a TokenStore.
type SessionService struct {
	gateway  Gateway
	store    repository.TokenStore
	notifier notify.Notifier
	tr       *notify.Translator
	logger   zerolog.Logger

	mu      sync.Mutex
	loading bool
	creds   *credentials
}

// NewSessionService creates a session service backed by store
func NewSessionService(deps Deps, store repository.TokenStore) *SessionService {
	return &SessionService{
		gateway:  deps.Gateway,
		store:    store,
		notifier: deps.notifier(),
		tr:       deps.translator(),
		logger:   deps.logger("session"),
	}
}

// Login exchanges credentials for an access token and stores it.
// Exactly one notification fires per call.
func (s *SessionService) Login(ctx context.Context, username, password string) error {
	s.setLoading(true)
	defer s.setLoading(false)

	if err := s.authenticate(ctx, credentials{Username: username, Password: password}); err != nil {
		s.notifier.Notify(notify.KindError, s.tr.T(notify.MsgLoginFailed), failureMessage(err, s.tr))
		return err
	}
	s.notifier.Notify(notify.KindSuccess, s.tr.T(notify.MsgLoginSucceeded), "")
	return nil
}

func (s *SessionService) authenticate(ctx context.Context, creds credentials) error {
	resp, err := s.gateway.Post(ctx, backend.PathToken, backend.JSONBody{Value: creds})
	if err != nil {
		s.logger.Warn().Err(err).Str("username", creds.Username).Msg("login failed")
		return err
	}

	var out tokenResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return &backend.Error{Kind: backend.KindApplication, StatusCode: resp.StatusCode, Message: "response did not include an access token"}
	}

	if err := s.store.Save(ctx, out.AccessToken); err != nil {
		return fmt.Errorf("failed to store session token: %w", err)
	}

	s.mu.Lock()
	s.creds = &creds
	s.mu.Unlock()

	s.logger.Info().Str("username", creds.Username).Msg("session established")
	return nil
}

// Logout forgets the stored token and credentials.
func (s *SessionService) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	return nil
}

// LoggedIn reports whether a token is stored.
func (s *SessionService) LoggedIn(ctx context.Context) (bool, error) {
	token, err := s.store.Token(ctx)
	if err != nil {
		return false, err
	}
	return token != "", nil
}

func (s *SessionService) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *SessionService) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Refresh logs in again with the last credentials that succeeded.
// It is a no-op when nobody has logged in.
func (s *SessionService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	creds := s.creds
	s.mu.Unlock()

	if creds == nil {
		s.logger.Debug().Msg("no session to refresh")
		return nil
	}
	return s.authenticate(ctx, *creds)
}

// StartRefresh re-authenticates on the given cron schedule until ctx is done
// or the returned stop function is called.
func (s *SessionService) StartRefresh(ctx context.Context, schedule string) (func(), error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		if err := s.Refresh(ctx); err != nil {
			s.logger.Error().Err(err).Msg("session refresh failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	c.Start()
	s.logger.Info().Str("schedule", schedule).Msg("session refresh scheduled")

	var once sync.Once
	stop := func() {
		once.Do(func() {
			<-c.Stop().Done()
			s.logger.Info().Msg("session refresh stopped")
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop, nil
}
