package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"libris/api/internal/session"
	"libris/api/internal/util"
)

type fakeSessionStore struct {
	saved   map[string]time.Duration
	revoked []string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{saved: make(map[string]time.Duration)}
}

func (f *fakeSessionStore) SaveAdminSession(_ context.Context, tokenHash string, ttl time.Duration) error {
	f.saved[tokenHash] = ttl
	return nil
}

func (f *fakeSessionStore) LookupAdminSession(_ context.Context, tokenHash string) (session.AdminSession, error) {
	if _, ok := f.saved[tokenHash]; !ok {
		return session.AdminSession{}, session.ErrNotFound
	}
	return session.AdminSession{UnlockedAt: time.Now()}, nil
}

func (f *fakeSessionStore) RevokeAdminSession(_ context.Context, tokenHash string) error {
	delete(f.saved, tokenHash)
	f.revoked = append(f.revoked, tokenHash)
	return nil
}

func newTestService(t *testing.T, sessions SessionStore) *Service {
	t.Helper()
	hash, err := HashPassword("open-sesame")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return NewService(hash, sessions, time.Hour)
}

func TestUnlockWithCorrectPassword(t *testing.T) {
	sessions := newFakeSessionStore()
	svc := newTestService(t, sessions)
	ctx := context.Background()

	token, err := svc.Unlock(ctx, "open-sesame")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if token == "" {
		t.Fatal("empty session token")
	}
	if _, ok := sessions.saved[token]; ok {
		t.Error("plaintext token stored, want hash only")
	}
	if ttl, ok := sessions.saved[util.HashToken(token)]; !ok || ttl != time.Hour {
		t.Errorf("session not saved under token hash with ttl: %v", sessions.saved)
	}

	if err := svc.Check(ctx, token); err != nil {
		t.Errorf("Check after unlock: %v", err)
	}
}

func TestUnlockRejectsWrongPassword(t *testing.T) {
	sessions := newFakeSessionStore()
	svc := newTestService(t, sessions)

	if _, err := svc.Unlock(context.Background(), "guess"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("err = %v, want ErrWrongPassword", err)
	}
	if len(sessions.saved) != 0 {
		t.Error("failed unlock created a session")
	}
}

func TestCheckRejectsUnknownToken(t *testing.T) {
	svc := newTestService(t, newFakeSessionStore())
	ctx := context.Background()

	if err := svc.Check(ctx, "never-issued"); err == nil {
		t.Error("unknown token accepted")
	}
	if err := svc.Check(ctx, ""); err == nil {
		t.Error("blank token accepted")
	}
}

func TestLockRevokesSession(t *testing.T) {
	sessions := newFakeSessionStore()
	svc := newTestService(t, sessions)
	ctx := context.Background()

	token, err := svc.Unlock(ctx, "open-sesame")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := svc.Lock(ctx, token); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := svc.Check(ctx, token); err == nil {
		t.Error("token still valid after Lock")
	}
}
