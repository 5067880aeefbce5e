package authflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// memStore is an in-memory UserStore for tests. The zero value is not usable;
// use newMemStore.
type memStore struct {
	mu         sync.Mutex
	nextUserID int64
	nextVerID  int64
	users      map[int64]*User
	byEmail    map[string]int64
	rows       []*Verification
	lastIssue  map[string]time.Time
	keys       map[int64]KeyPair
	profiles   map[int64]string
	roles      map[int64]string

	failAll error
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[int64]*User{},
		byEmail:   map[string]int64{},
		lastIssue: map[string]time.Time{},
		keys:      map[int64]KeyPair{},
		profiles:  map[int64]string{},
		roles:     map[int64]string{},
	}
}

func issueKey(userID int64, otpType OTPType) string {
	return fmt.Sprintf("%d:%s", userID, otpType)
}

func (s *memStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *s.users[id]
	return &u, nil
}

func (s *memStore) FindUserByID(_ context.Context, userID int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memStore) CreateInactiveUser(_ context.Context, email, passwordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	s.nextUserID++
	u := &User{ID: s.nextUserID, Email: email, PasswordHash: passwordHash, State: StateInactive}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	copied := *u
	return &copied, nil
}

func (s *memStore) UpdateUserState(_ context.Context, userID int64, state UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.State = state
	return nil
}

func (s *memStore) UpdatePasswordHash(_ context.Context, userID int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *memStore) CreateVerification(_ context.Context, v *Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	s.nextVerID++
	v.ID = s.nextVerID
	copied := *v
	s.rows = append(s.rows, &copied)
	s.lastIssue[issueKey(v.UserID, v.Type)] = v.CreatedAt
	return nil
}

func (s *memStore) ActiveVerification(_ context.Context, userID int64, otpType OTPType) (*Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	now := time.Now()
	for i := len(s.rows) - 1; i >= 0; i-- {
		row := s.rows[i]
		if row.UserID == userID && row.Type == otpType && !row.Verified && row.ExpiresAt.After(now) {
			copied := *row
			return &copied, nil
		}
	}
	return nil, ErrNoActiveOTP
}

func (s *memStore) MarkVerificationVerified(_ context.Context, verificationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	for _, row := range s.rows {
		if row.ID == verificationID {
			row.Verified = true
			return nil
		}
	}
	return ErrNoActiveOTP
}

func (s *memStore) InvalidateActiveVerifications(_ context.Context, userID int64, otpType OTPType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	now := time.Now()
	for _, row := range s.rows {
		if row.UserID == userID && row.Type == otpType && !row.Verified && row.ExpiresAt.After(now) {
			row.ExpiresAt = now
		}
	}
	return nil
}

func (s *memStore) RemainingCooldown(_ context.Context, userID int64, otpType OTPType, window time.Duration) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return 0, s.failAll
	}
	last, ok := s.lastIssue[issueKey(userID, otpType)]
	if !ok {
		return 0, nil
	}
	remaining := window - time.Since(last)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *memStore) UserKeyPair(_ context.Context, userID int64) (*KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	pair, ok := s.keys[userID]
	if !ok {
		return nil, ErrKeyPairNotFound
	}
	return &pair, nil
}

func (s *memStore) UpsertUserKeyPair(_ context.Context, userID int64, pair KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	s.keys[userID] = pair
	return nil
}

func (s *memStore) CreateProfile(_ context.Context, userID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	s.profiles[userID] = username
	return nil
}

func (s *memStore) AssignDefaultRole(_ context.Context, userID int64, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	s.roles[userID] = role
	return nil
}

// ageIssue rewinds the last-issue timestamp so tests can step past the
// cooldown window without sleeping.
func (s *memStore) ageIssue(userID int64, otpType OTPType, by time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := issueKey(userID, otpType)
	if last, ok := s.lastIssue[key]; ok {
		s.lastIssue[key] = last.Add(-by)
	}
}

// expireRows pushes every row of the given type past its expiry.
func (s *memStore) expireRows(userID int64, otpType OTPType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, row := range s.rows {
		if row.UserID == userID && row.Type == otpType {
			row.ExpiresAt = now
		}
	}
}

type sentMail struct {
	email string
	code  string
	reset bool
}

// recordingMailer captures dispatched codes for assertions.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *recordingMailer) SendRegistrationOTP(_ context.Context, email, code string) error {
	return m.record(email, code, false)
}

func (m *recordingMailer) SendPasswordResetOTP(_ context.Context, email, code string) error {
	return m.record(email, code, true)
}

func (m *recordingMailer) record(email, code string, reset bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{email: email, code: code, reset: reset})
	return nil
}

func (m *recordingMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail was sent")
	}
	return m.sent[len(m.sent)-1].code
}

// fakeHasher keeps engine tests fast; the real argon2id hasher is covered in
// the password package.
type fakeHasher struct{}

func (fakeHasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("empty password")
	}
	return "h:" + plain, nil
}

func (fakeHasher) Verify(plain, hash string) (bool, error) {
	return hash == "h:"+plain, nil
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.OTP.MaxAttempts = 3
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	mr     *miniredis.Miniredis
	store  *memStore
	mailer *recordingMailer
	engine *Engine
}

func newTestEngine(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)

	store := newMemStore()
	mailer := &recordingMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithMailer(mailer).
		WithPasswordHasher(fakeHasher{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{mr: mr, store: store, mailer: mailer, engine: engine}
}

// onboard walks an account through the full registration pipeline.
func (env *testEnv) onboard(t *testing.T, email, password string) *User {
	t.Helper()
	ctx := context.Background()

	if _, err := env.engine.RegisterEmail(ctx, email); err != nil {
		t.Fatalf("RegisterEmail failed: %v", err)
	}
	if err := env.engine.VerifyEmail(ctx, email, env.mailer.lastCode(t)); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if err := env.engine.SetupPassword(ctx, email, password, "tester"); err != nil {
		t.Fatalf("SetupPassword failed: %v", err)
	}

	user, err := env.store.FindUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("user lookup after onboarding failed: %v", err)
	}
	return user
}
