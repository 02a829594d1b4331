package myMiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (int, string, error) {
	if token == "good" {
		return 42, "alice", nil
	}
	return 0, "", errors.New("bad token")
}

func echoUser(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok || id != (Identity{UserID: 42, Username: "alice"}) {
			t.Errorf("expected alice (42) in context, got %+v %v", id, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthMiddleware(t *testing.T) {
	h := NewAuthMiddleware(stubValidator{}).Handle(echoUser(t))

	cases := []struct {
		name   string
		header string
		url    string
		want   int
	}{
		{"missing", "", "/x", http.StatusUnauthorized},
		{"bad", "Bearer nope", "/x", http.StatusUnauthorized},
		{"header", "Bearer good", "/x", http.StatusNoContent},
		{"lowercase scheme", "bearer good", "/x", http.StatusNoContent},
		{"other scheme", "Basic good", "/x", http.StatusUnauthorized},
		{"other scheme ignores query", "Basic good", "/x?token=good", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", "/x", http.StatusUnauthorized},
		{"query", "", "/x?token=good", http.StatusNoContent},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, c.url, nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != c.want {
				t.Fatalf("status = %d, want %d", rec.Code, c.want)
			}
		})
	}
}

func TestUserIDFromContextWithoutAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := UserIDFromContext(req.Context()); ok {
		t.Fatalf("expected no identity on a bare request")
	}
}

func TestWithIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{UserID: 7, Username: "bob"})
	if id, ok := UserIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("UserIDFromContext = %d %v, want 7 true", id, ok)
	}
	// a plain value under a look-alike key is not an identity
	type lookAlike string
	ctx = context.WithValue(context.Background(), lookAlike("user_id"), Identity{UserID: 7})
	if _, ok := IdentityFromContext(ctx); ok {
		t.Fatalf("untyped context values must not be read as an identity")
	}
}

func TestLimiterStoreAllow(t *testing.T) {
	// allow 5 events immediately then the 6th should be rejected
	s := NewLimiterStore(5, 5, time.Hour)
	defer s.Stop()

	key := "10.0.0.1"
	for i := 0; i < 5; i++ {
		if !s.Allow(key) {
			t.Fatalf("expected allow at iteration %d", i)
		}
	}
	if s.Allow(key) {
		t.Fatalf("expected limiter to block after burst consumed")
	}
	if !s.Allow("10.0.0.2") {
		t.Fatalf("other keys have their own bucket")
	}
}

func TestLimiterStoreEvictIdle(t *testing.T) {
	s := NewLimiterStore(5, 5, time.Hour)
	defer s.Stop()

	s.Allow("a")
	s.evictIdle(time.Now().Add(time.Second))

	s.mu.Lock()
	_, ok := s.clients["a"]
	s.mu.Unlock()
	if ok {
		t.Fatalf("idle entry should have been evicted")
	}
}

func TestLimiterStoreHandle(t *testing.T) {
	s := NewLimiterStore(1, 1, time.Hour)
	defer s.Stop()

	h := s.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("first request = %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", code)
	}
}
