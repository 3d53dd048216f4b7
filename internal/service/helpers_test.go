package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/usergate/internal/domain"
	"github.com/Skotchmaster/usergate/internal/hash"
	"github.com/Skotchmaster/usergate/internal/models"
	"github.com/Skotchmaster/usergate/internal/repo"
	"github.com/Skotchmaster/usergate/internal/revocation"
	"github.com/Skotchmaster/usergate/internal/testutil"
	"github.com/Skotchmaster/usergate/internal/tokens"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []map[string]any
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic != UserEventsTopic {
		return errors.New("unexpected topic " + topic)
	}
	p.events = append(p.events, event.(map[string]any))
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e["type"].(string))
	}
	return out
}

type brokenRevocations struct{}

func (brokenRevocations) Revoke(context.Context, string, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

// stallingUsers blocks until the lookup context gives up.
type stallingUsers struct{ *repo.GormRepo }

func (stallingUsers) FindByUsername(ctx context.Context, _ string) (*models.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingUsers struct{ *repo.GormRepo }

func (failingUsers) FindByUsername(context.Context, string) (*models.User, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type testEnv struct {
	clock  *fakeClock
	repo   *repo.GormRepo
	store  *revocation.MemoryStore
	events *recordingPublisher
	codec  *tokens.Codec
	hasher hash.Bcrypt
	mgr    *SessionManager
	users  *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := tokens.NewCodec([]byte("test-jwt-secret"), "HS256", tokens.WithClock(clock.Now))
	require.NoError(t, err)

	env := &testEnv{
		clock:  clock,
		repo:   &repo.GormRepo{DB: testutil.InitTestDB(t)},
		store:  revocation.NewMemoryStore(revocation.MemoryConfig{Now: clock.Now}),
		events: &recordingPublisher{},
		codec:  codec,
		hasher: hash.Bcrypt{Cost: bcrypt.MinCost},
	}
	env.mgr = &SessionManager{
		Users:       env.repo,
		Hasher:      env.hasher,
		Codec:       codec,
		Revocations: revocation.NewGuard(env.store, time.Second),
		Events:      env.events,
		Now:         clock.Now,
	}
	env.users = &UserService{
		Repo:   env.repo,
		Hasher: env.hasher,
		Events: env.events,
		Now:    clock.Now,
	}
	return env
}

func (env *testEnv) register(t *testing.T, username, password string) *models.User {
	t.Helper()
	u, err := env.users.Register(context.Background(), username, username+"@example.com", password)
	require.NoError(t, err)
	require.Equal(t, string(domain.RoleUser), u.Role)
	return u
}
