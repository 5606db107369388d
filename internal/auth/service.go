package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/auth-session-api/internal/model"
	"github.com/iliyamo/auth-session-api/internal/queue"
	"github.com/iliyamo/auth-session-api/internal/repository"
	"github.com/iliyamo/auth-session-api/internal/telemetry"
)

// Registration is the input of Register.  Profile fields are optional.
type Registration struct {
	Email     string
	Password  string
	Roles     []string
	Username  string
	FirstName string
	LastName  string
}

// TokenPair is returned by Register and Login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Profile describes the authenticated user.
type Profile struct {
	Email     string   `json:"email"`
	Username  string   `json:"username,omitempty"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Roles     []string `json:"roles"`
	LoggedIn  bool     `json:"loggedIn"`
}

// Service orchestrates the session lifecycle over the stores.
type Service struct {
	store   repository.Store
	hasher  Hasher
	issuer  *Issuer
	events  queue.Publisher
	metrics telemetry.Recorder
	tracer  trace.Tracer
	logger  *slog.Logger

	pending sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithEvents publishes auth events after each successful operation.
func WithEvents(p queue.Publisher) Option { return func(s *Service) { s.events = p } }

// WithRecorder records operation metrics.
func WithRecorder(r telemetry.Recorder) Option { return func(s *Service) { s.metrics = r } }

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(store repository.Store, hasher Hasher, issuer *Issuer, opts ...Option) *Service {
	s := &Service{
		store:   store,
		hasher:  hasher,
		issuer:  issuer,
		events:  queue.NopPublisher{},
		metrics: telemetry.Nop(),
		tracer:  otel.Tracer(telemetry.InstrumentationName + "/internal/auth"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issuer returns the token issuer used by the service.
func (s *Service) Issuer() *Issuer { return s.issuer }

// Register creates the user, its refresh token row and role links in one
// transaction and returns the first token pair.
func (s *Service) Register(ctx context.Context, r Registration) (pair TokenPair, err error) {
	ctx, end := s.observe(ctx, "register")
	defer func() { end(err) }()

	if len(r.Password) > MaxPasswordBytes {
		return TokenPair{}, ErrPasswordTooLong
	}
	roles, err := uniqueRoles(r.Roles)
	if err != nil {
		return TokenPair{}, err
	}

	email := repository.NormalizeEmail(r.Email)
	switch _, err := s.store.Users().FindByEmail(ctx, email); {
	case err == nil:
		return TokenPair{}, ErrUserExists
	case !errors.Is(err, repository.ErrNotFound):
		return TokenPair{}, err
	}

	var user model.User
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		hash, err := s.hasher.Hash(r.Password)
		if err != nil {
			return err
		}

		user, err = tx.Users().Create(ctx, model.NewUser{
			Email:        email,
			PasswordHash: hash,
			Username:     r.Username,
			FirstName:    r.FirstName,
			LastName:     r.LastName,
		})
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return ErrUserExists
		case errors.Is(err, repository.ErrUsernameTaken):
			return ErrUsernameTaken
		case err != nil:
			return err
		}

		p := Payload{Email: user.Email, Password: hash}
		if pair.AccessToken, err = s.issuer.IssueAccess(p); err != nil {
			return err
		}
		if pair.RefreshToken, err = s.issuer.IssueRefresh(p); err != nil {
			return err
		}
		if _, err := tx.Tokens().Create(ctx, user.ID, pair.RefreshToken); err != nil {
			return err
		}

		for _, role := range roles {
			if err := tx.Users().AttachRole(ctx, user.ID, role); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return TokenPair{}, err
	}

	ev := queue.NewAuthEvent(queue.EventUserRegistered, user.ID, user.Email)
	ev.Roles = roles
	s.publish(ctx, ev)
	return pair, nil
}

// Login verifies credentials and returns a fresh access token together with
// the user's refresh token.  An active refresh token is returned unchanged.
func (s *Service) Login(ctx context.Context, email, password string) (pair TokenPair, err error) {
	ctx, end := s.observe(ctx, "login")
	defer func() { end(err) }()

	user, err := s.store.Users().FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return TokenPair{}, ErrInvalidCredentials
	}

	p := Payload{Email: user.Email}
	if pair.AccessToken, err = s.issuer.IssueAccess(p); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, err = s.session(ctx, user.ID, p); err != nil {
		return TokenPair{}, err
	}

	s.publish(ctx, queue.NewAuthEvent(queue.EventUserLoggedIn, user.ID, user.Email))
	return pair, nil
}

// session returns the user's active refresh token, creating the row or
// filling a cleared one as needed.
func (s *Service) session(ctx context.Context, userID uint64, p Payload) (string, error) {
	tokens := s.store.Tokens()

	row, err := tokens.FindByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		token, err := s.issuer.IssueRefresh(p)
		if err != nil {
			return "", err
		}
		_, err = tokens.Create(ctx, userID, token)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, repository.ErrTokenExists) {
			return "", err
		}
		// a concurrent login created the row first
		row, err = tokens.FindByUser(ctx, userID)
	}
	if err != nil {
		return "", err
	}

	if row.Active() {
		return row.Token, nil
	}
	token, err := s.issuer.IssueRefresh(p)
	if err != nil {
		return "", err
	}
	if err := tokens.Set(ctx, *row, token); err != nil {
		return "", err
	}
	return token, nil
}

// Refresh issues a new access token for a verified refresh payload.  It
// fails with ErrNotLoggedIn once the session has been cleared by logout.
func (s *Service) Refresh(ctx context.Context, p Payload) (access string, err error) {
	ctx, end := s.observe(ctx, "refresh")
	defer func() { end(err) }()

	user, row, err := s.userSession(ctx, p.Email)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !row.Active()) {
		return "", ErrNotLoggedIn
	}
	if err != nil {
		return "", err
	}

	if access, err = s.issuer.IssueAccess(Payload{Email: user.Email}); err != nil {
		return "", err
	}
	s.publish(ctx, queue.NewAuthEvent(queue.EventTokenRefreshed, user.ID, user.Email))
	return access, nil
}

// Logout clears the user's refresh token, keeping the row for the next login.
func (s *Service) Logout(ctx context.Context, p Payload) (err error) {
	ctx, end := s.observe(ctx, "logout")
	defer func() { end(err) }()

	user, _, err := s.userSession(ctx, p.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	err = s.store.Tokens().Clear(ctx, user.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	s.publish(ctx, queue.NewAuthEvent(queue.EventUserLoggedOut, user.ID, user.Email))
	return nil
}

// Profile describes the user behind a verified access payload.
func (s *Service) Profile(ctx context.Context, p Payload) (prof Profile, err error) {
	ctx, end := s.observe(ctx, "profile")
	defer func() { end(err) }()

	user, err := s.store.Users().FindByEmail(ctx, p.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return Profile{}, ErrSessionNotFound
	}
	if err != nil {
		return Profile{}, err
	}

	roles, err := s.store.Users().Roles(ctx, user.ID)
	if err != nil {
		return Profile{}, err
	}
	row, err := s.store.Tokens().FindByUser(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return Profile{}, err
	}

	return Profile{
		Email:     user.Email,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Roles:     roles,
		LoggedIn:  row != nil && row.Active(),
	}, nil
}

// Wait blocks until in-flight event publications finish.
func (s *Service) Wait() { s.pending.Wait() }

// userSession loads the user and its refresh token row.  Either missing
// yields repository.ErrNotFound.
func (s *Service) userSession(ctx context.Context, email string) (*model.User, *model.RefreshToken, error) {
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	row, err := s.store.Tokens().FindByUser(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, row, nil
}

// publish sends ev in the background.  A failure is logged and never
// reaches the caller.
func (s *Service) publish(ctx context.Context, ev queue.AuthEvent) {
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "publish auth event failed", "event", ev.Type, "user_id", ev.UserID, "error", err)
		}
	}()
}

// observe starts a span for op and returns a func that ends it and records
// the outcome.
func (s *Service) observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "auth."+op)
	return ctx, func(err error) {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		if outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.Record(ctx, op, outcome, time.Since(start))
	}
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUserExists):
		return "user_exists"
	case errors.Is(err, ErrUsernameTaken):
		return "username_taken"
	case errors.Is(err, ErrNotLoggedIn):
		return "not_logged_in"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrInvalidRole):
		return "invalid_role"
	case errors.Is(err, ErrPasswordTooLong):
		return "password_too_long"
	default:
		return "error"
	}
}

// uniqueRoles validates roles against the allowed set and drops repeats.
func uniqueRoles(roles []string) ([]string, error) {
	seen := make(map[string]bool, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if !model.ValidRole(role) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
		}
		if !seen[role] {
			seen[role] = true
			out = append(out, role)
		}
	}
	return out, nil
}
