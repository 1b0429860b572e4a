package repo

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-account/pkg/database"
)

func newTestRepo(t *testing.T) *AccountRepo {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	r := NewAccountRepo(db)
	if err := r.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	// idempotent
	if err := r.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable again: %v", err)
	}
	return r
}

func sampleAccount(id int64, username string) *entity.Account {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &entity.Account{
		ID:                id,
		Username:          username,
		PasswordHash:      "hash-" + username,
		PasswordAlgo:      "bcrypt:4",
		MobileNumber:      "9876543210",
		FirstName:         "Alice",
		LastName:          "Liddell",
		Email:             username + "@example.com",
		CreatedAt:         now,
		PasswordUpdatedAt: now,
	}
}

func TestInsertAndFind(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	a := sampleAccount(1, "alice")
	if err := r.Insert(ctx, a); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if a.Status != "active" {
		t.Fatalf("status = %q", a.Status)
	}

	got, err := r.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if got.ID != 1 || got.Email != "alice@example.com" || !got.CreatedAt.Equal(a.CreatedAt) {
		t.Fatalf("unexpected account %+v", got)
	}

	if _, err := r.FindByID(ctx, 1); err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if _, err := r.FindByUsername(ctx, "Alice"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("usernames are case-sensitive, got %v", err)
	}
	if _, err := r.FindByID(ctx, 99); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestFindByUsernameAndMobile(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if err := r.Insert(ctx, sampleAccount(1, "alice")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, err := r.FindByUsernameAndMobile(ctx, "alice", "9876543210"); err != nil {
		t.Fatalf("match: %v", err)
	}
	if _, err := r.FindByUsernameAndMobile(ctx, "alice", "0000000000"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("wrong mobile: %v", err)
	}
	if _, err := r.FindByUsernameAndMobile(ctx, "bob", "9876543210"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("wrong username: %v", err)
	}
}

func TestInsertDuplicateUsername(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if err := r.Insert(ctx, sampleAccount(1, "alice")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := r.Insert(ctx, sampleAccount(2, "alice")); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestInsertDuplicateEmail(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if err := r.Insert(ctx, sampleAccount(1, "alice")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	bob := sampleAccount(2, "bob")
	bob.Email = "alice@example.com"
	if err := r.Insert(ctx, bob); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	// same username and email reports the username
	if err := r.Insert(ctx, sampleAccount(3, "alice")); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}

	// empty emails never collide
	for i, name := range []string{"carol", "dave"} {
		a := sampleAccount(int64(10+i), name)
		a.Email = ""
		if err := r.Insert(ctx, a); err != nil {
			t.Fatalf("Insert %s without email: %v", name, err)
		}
	}
}

func TestConcurrentInsertSameUsername(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	const n = 8
	var wins, dups atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			err := r.Insert(ctx, sampleAccount(id, "racer"))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrDuplicateUsername):
				dups.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i + 1))
	}
	wg.Wait()
	if wins.Load() != 1 || dups.Load() != n-1 {
		t.Fatalf("wins=%d dups=%d", wins.Load(), dups.Load())
	}
}

func TestUpdatePasswordHash(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if err := r.Insert(ctx, sampleAccount(1, "alice")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	at := time.Now().Add(time.Minute)
	ok, err := r.UpdatePasswordHash(ctx, 1, "new-hash", "bcrypt:4", at)
	if err != nil || !ok {
		t.Fatalf("UpdatePasswordHash: ok=%v err=%v", ok, err)
	}
	got, _ := r.FindByID(ctx, 1)
	if got.PasswordHash != "new-hash" || got.PasswordUpdatedAt.UnixMilli() != at.UnixMilli() {
		t.Fatalf("unexpected %+v", got)
	}

	ok, err = r.UpdatePasswordHash(ctx, 42, "x", "y", at)
	if err != nil || ok {
		t.Fatalf("missing row: ok=%v err=%v", ok, err)
	}
}
