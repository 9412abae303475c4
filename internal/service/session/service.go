package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/internal/repository"
	"github.com/jwalitptl/retina-api/pkg/errors"
	"github.com/jwalitptl/retina-api/pkg/event"
	"github.com/jwalitptl/retina-api/pkg/logger"
	"github.com/jwalitptl/retina-api/pkg/metrics"
	"github.com/jwalitptl/retina-api/pkg/security"
)

const storeName = "session"

// Error messages shown to the operator.
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgDoctorsOnly        = "Only doctor registrations are allowed"
	MsgEmailInUse         = "Email already in use"
)

// Store is the session surface consumed by handlers and middleware.
type Store interface {
	Login(ctx context.Context, email, password string) (*model.Identity, error)
	Register(ctx context.Context, req model.RegisterRequest) (*model.Identity, error)
	Logout(ctx context.Context) error
	Current() (*model.Identity, bool)
	IsLoading() bool
	State() model.SessionState
	Subscribe(l event.Listener) func()
}

type Config struct {
	// Latency is the simulated round trip for login and register.
	Latency time.Duration
}

// Service holds at most one signed-in identity.
type Service struct {
	repo     repository.SessionRepository
	sentinel *security.Sentinel
	bus      *event.Bus
	logger   *logger.Logger
	metrics  *metrics.Metrics
	latency  time.Duration

	sleep func(time.Duration)
	newID func() string

	mu      sync.RWMutex
	current *model.Identity
	roster  []model.Identity
	loading int
}

var _ Store = (*Service)(nil)

// NewService rehydrates the current identity and the roster. An empty
// roster is seeded with the demo doctor and written back.
func NewService(
	ctx context.Context,
	repo repository.SessionRepository,
	sentinel *security.Sentinel,
	bus *event.Bus,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	cfg Config,
) (*Service, error) {
	s := &Service{
		repo:     repo,
		sentinel: sentinel,
		bus:      bus,
		logger:   logger,
		metrics:  metrics,
		latency:  cfg.Latency,
		sleep:    time.Sleep,
		newID:    func() string { return uuid.New().String() },
	}

	roster, ok, err := repo.LoadRoster(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	if !ok || len(roster) == 0 {
		roster = []model.Identity{model.DemoDoctor()}
		if err := repo.SaveRoster(ctx, roster); err != nil {
			return nil, fmt.Errorf("failed to seed roster: %w", err)
		}
	}
	s.roster = roster

	current, ok, err := repo.LoadCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if ok {
		s.current = current
		s.metrics.SessionActive.Set(1)
	}

	return s, nil
}

// Login waits out the simulated latency, then signs in a roster identity
// whose email matches exactly and whose password equals the sentinel.
// The wait ignores ctx: an abandoned login still commits.
func (s *Service) Login(ctx context.Context, email, password string) (*model.Identity, error) {
	s.beginLoading()
	defer s.endLoading()

	s.sleep(s.latency)
	ctx = context.WithoutCancel(ctx)

	matches := s.sentinel.Matches(password)

	s.mu.Lock()
	found, ok := s.find(email)
	if !ok || !matches {
		s.mu.Unlock()
		err := errors.Authentication(MsgInvalidCredentials)
		s.fail(event.SessionLoginFailed, "login", err)
		return nil, err
	}

	identity := found
	if err := s.repo.SaveCurrent(ctx, &identity); err != nil {
		s.mu.Unlock()
		appErr := errors.Internal(err)
		s.fail(event.SessionLoginFailed, "login", appErr)
		return nil, appErr
	}
	s.current = &identity
	s.mu.Unlock()

	s.metrics.SessionActive.Set(1)
	s.metrics.ObserveStore(storeName, "login", nil)
	s.logger.Info("Signed in", "user_id", identity.ID)
	s.bus.Publish(event.Event{
		Type:      event.SessionLoggedIn,
		Store:     storeName,
		Operation: "login",
		Payload:   identity,
	})

	out := identity
	return &out, nil
}

// Register creates a doctor identity, adds it to the roster and signs it
// in. Any other role is rejected before the simulated latency.
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.Identity, error) {
	if req.Role != model.RoleDoctor {
		err := errors.Authorization(MsgDoctorsOnly)
		s.fail(event.SessionRegisterFailed, "register", err)
		return nil, err
	}

	s.beginLoading()
	defer s.endLoading()

	s.sleep(s.latency)
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if _, taken := s.find(req.Email); taken {
		s.mu.Unlock()
		err := errors.Conflict(MsgEmailInUse)
		s.fail(event.SessionRegisterFailed, "register", err)
		return nil, err
	}

	identity := model.Identity{
		ID:    s.newID(),
		Email: req.Email,
		Name:  strings.TrimSpace(req.Name),
		Role:  model.RoleDoctor,
	}
	roster := make([]model.Identity, len(s.roster), len(s.roster)+1)
	copy(roster, s.roster)
	roster = append(roster, identity)

	if err := s.persistRegistration(ctx, roster, &identity); err != nil {
		s.mu.Unlock()
		appErr := errors.Internal(err)
		s.fail(event.SessionRegisterFailed, "register", appErr)
		return nil, appErr
	}
	s.roster = roster
	s.current = &identity
	s.mu.Unlock()

	s.metrics.SessionActive.Set(1)
	s.metrics.ObserveStore(storeName, "register", nil)
	s.logger.Info("Registered doctor", "user_id", identity.ID)
	s.bus.Publish(event.Event{
		Type:      event.SessionRegistered,
		Store:     storeName,
		Operation: "register",
		Payload:   identity,
	})

	out := identity
	return &out, nil
}

// persistRegistration writes the roster first; if the session write then
// fails the roster is restored so memory and mirror stay in step.
func (s *Service) persistRegistration(ctx context.Context, roster []model.Identity, identity *model.Identity) error {
	if err := s.repo.SaveRoster(ctx, roster); err != nil {
		return err
	}
	if err := s.repo.SaveCurrent(ctx, identity); err != nil {
		if rbErr := s.repo.SaveRoster(ctx, s.roster); rbErr != nil {
			s.logger.Error(rbErr, "Failed to restore roster after session write failure")
		}
		return err
	}
	return nil
}

// Logout clears the persisted identity, then memory. It only fails when
// the mirror cannot be written, in which case the session is kept.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	if err := s.repo.ClearCurrent(ctx); err != nil {
		s.mu.Unlock()
		appErr := errors.Internal(err)
		s.fail(event.OperationFailed, "logout", appErr)
		return appErr
	}
	previous := s.current
	s.current = nil
	s.mu.Unlock()

	s.metrics.SessionActive.Set(0)
	s.metrics.ObserveStore(storeName, "logout", nil)

	var payload interface{}
	if previous != nil {
		payload = *previous
	}
	s.bus.Publish(event.Event{
		Type:      event.SessionLoggedOut,
		Store:     storeName,
		Operation: "logout",
		Payload:   payload,
	})
	return nil
}

// Current returns a copy of the signed-in identity.
func (s *Service) Current() (*model.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	out := *s.current
	return &out, true
}

// IsLoading reports whether a login or register is waiting out its latency.
func (s *Service) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

func (s *Service) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := model.SessionState{Loading: s.loading > 0}
	if s.current != nil {
		u := *s.current
		state.Authenticated = true
		state.User = &u
	}
	return state
}

func (s *Service) Subscribe(l event.Listener) func() {
	return s.bus.Subscribe(l)
}

// find must be called with mu held.
func (s *Service) find(email string) (model.Identity, bool) {
	for _, u := range s.roster {
		if u.Email == email {
			return u, true
		}
	}
	return model.Identity{}, false
}

func (s *Service) beginLoading() {
	s.mu.Lock()
	s.loading++
	first := s.loading == 1
	s.mu.Unlock()
	if first {
		s.bus.Publish(event.Event{Type: event.SessionLoading, Store: storeName, Payload: true})
	}
}

func (s *Service) endLoading() {
	s.mu.Lock()
	s.loading--
	last := s.loading == 0
	s.mu.Unlock()
	if last {
		s.bus.Publish(event.Event{Type: event.SessionLoading, Store: storeName, Payload: false})
	}
}

func (s *Service) fail(t event.Type, op string, err error) {
	s.metrics.ObserveStore(storeName, op, err)
	s.logger.Warn("Session operation failed", "operation", op, "error", err.Error())
	s.bus.Publish(event.Event{
		Type:      t,
		Store:     storeName,
		Operation: op,
		Err:       err,
	})
}
