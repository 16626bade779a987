package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Clark-Hu/reelrate/internal/domain"
	"github.com/Clark-Hu/reelrate/internal/logging"
	"github.com/Clark-Hu/reelrate/internal/repository"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() {
	PasswordCost = bcrypt.MinCost
}

func newTokens(t *testing.T) *Tokens {
	t.Helper()
	tk, err := NewTokens(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	return tk
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if ok, err := CheckPassword(hash, "correct horse"); err != nil || !ok {
		t.Fatalf("CheckPassword(match) = %v, %v", ok, err)
	}
	if ok, err := CheckPassword(hash, "wrong"); err != nil || ok {
		t.Fatalf("CheckPassword(mismatch) = %v, %v", ok, err)
	}
	if _, err := CheckPassword("not-a-hash", "x"); err == nil {
		t.Fatalf("expected error for malformed hash")
	}
}

func TestNewTokens_Validation(t *testing.T) {
	if _, err := NewTokens("", time.Hour); err == nil {
		t.Fatalf("empty secret accepted")
	}
	if _, err := NewTokens(testSecret, 0); err == nil {
		t.Fatalf("zero ttl accepted")
	}
}

func TestTokens_IssueValidate(t *testing.T) {
	tk := newTokens(t)
	id := uuid.New()

	raw, expires, err := tk.Issue(id, "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expiry %v is not in the future", expires)
	}
	p, err := tk.Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.UserID != id || p.Username != "alice" {
		t.Fatalf("principal = %+v", p)
	}
}

func TestTokens_Rejects(t *testing.T) {
	tk := newTokens(t)
	id := uuid.New()
	good, _, err := tk.Issue(id, "bob")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, _ := NewTokens("ffffffffffffffffffffffffffffffff", time.Hour)
	foreign, _, _ := other.Issue(id, "bob")

	expired := newTokens(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, _ := expired.Issue(id, "bob")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))

	tests := map[string]string{
		"garbage":      "abc.def.ghi",
		"tampered":     good + "x",
		"wrong secret": foreign,
		"expired":      stale,
		"alg none":     unsigned,
		"bad subject":  badSubject,
		"empty":        "",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := tk.Validate(raw); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Fatalf("empty context has a principal")
	}
	if UserID(ctx) != nil {
		t.Fatalf("UserID on anonymous context should be nil")
	}
	id := uuid.New()
	ctx = WithPrincipal(ctx, Principal{UserID: id, Username: "c"})
	if got := UserID(ctx); got == nil || *got != id {
		t.Fatalf("UserID() = %v, want %v", got, id)
	}
}

type recordedError struct {
	status int
	code   string
}

func recordingWriter(got *recordedError) ErrorWriter {
	return func(w http.ResponseWriter, status int, code, _ string) {
		got.status, got.code = status, code
		w.WriteHeader(status)
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	tk := newTokens(t)
	id := uuid.New()
	token, _, _ := tk.Issue(id, "dana")

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   bool
	}{
		{"anonymous", "", http.StatusOK, false},
		{"valid bearer", "Bearer " + token, http.StatusOK, true},
		{"lowercase scheme", "bearer " + token, http.StatusOK, true},
		{"basic scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, false},
		{"missing token", "Bearer ", http.StatusUnauthorized, false},
		{"invalid token", "Bearer nope", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got recordedError
			var sawUser bool
			h := Authenticate(tk, recordingWriter(&got))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				p, ok := FromContext(r.Context())
				sawUser = ok && p.UserID == id
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if sawUser != tt.wantUser {
				t.Fatalf("principal attached = %v, want %v", sawUser, tt.wantUser)
			}
			if tt.wantStatus == http.StatusUnauthorized && got.code != "UNAUTHORIZED" {
				t.Fatalf("error code = %q", got.code)
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	var got recordedError
	h := RequireUser(recordingWriter(&got))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: uuid.New()}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("authenticated status = %d, want 204", rr.Code)
	}
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
	err   error
}

func (m *memUsers) Create(_ context.Context, u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.User{}, m.err
	}
	if m.users == nil {
		m.users = make(map[string]domain.User)
	}
	if _, ok := m.users[u.Username]; ok {
		return domain.User{}, repository.ErrConflict
	}
	u.CreatedAt = time.Now()
	m.users[u.Username] = u
	return u, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.User{}, m.err
	}
	u, ok := m.users[username]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return u, nil
}

func TestService_RegisterLogin(t *testing.T) {
	tk := newTokens(t)
	svc := NewService(&memUsers{}, tk, logging.Discard())
	ctx := context.Background()

	session, err := svc.Register(ctx, " erin ", "Erin@Example.com", "longenough")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if session.User.Username != "erin" || session.User.Email != "erin@example.com" {
		t.Fatalf("user not normalized: %+v", session.User)
	}
	if session.User.PasswordHash == "longenough" {
		t.Fatalf("password stored in clear")
	}
	if p, err := tk.Validate(session.Token); err != nil || p.UserID != session.User.ID {
		t.Fatalf("register token invalid: %v", err)
	}

	if _, err := svc.Register(ctx, "erin", "other@example.com", "longenough"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate register = %v, want ErrUserExists", err)
	}

	login, err := svc.Login(ctx, "erin", "longenough")
	if err != nil || login.User.ID != session.User.ID {
		t.Fatalf("Login = %+v, %v", login, err)
	}
	if _, err := svc.Login(ctx, "erin", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody", "longenough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user = %v, want ErrInvalidCredentials", err)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	svc := NewService(&memUsers{}, newTokens(t), logging.Discard())
	for name, args := range map[string][3]string{
		"short password": {"frank", "f@example.com", "short"},
		"blank username": {"  ", "f@example.com", "longenough"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), args[0], args[1], args[2])
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
		})
	}
}

func TestService_StorageFailure(t *testing.T) {
	boom := errors.New("db down")
	svc := NewService(&memUsers{err: boom}, newTokens(t), logging.Discard())
	_, err := svc.Login(context.Background(), "gina", "longenough")
	var serr *domain.StorageError
	if !errors.As(err, &serr) || !errors.Is(err, boom) {
		t.Fatalf("error = %v, want StorageError", err)
	}
}
