package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatal(err)
	}
	// every pooled connection would otherwise get its own empty database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatal(err)
	}
	return NewStore(db)
}

func createUser(t *testing.T, s *Store, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", Password: "hash"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestCreateUser_AssignsID(t *testing.T) {
	s := setupTestStore(t)
	u := createUser(t, s, "alice")
	if u.ID == "" {
		t.Fatal("Expected generated id")
	}

	got, err := s.UserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID {
		t.Errorf("Expected id %s, got %s", u.ID, got.ID)
	}
}

func TestCreateUser_RejectsDuplicates(t *testing.T) {
	s := setupTestStore(t)
	createUser(t, s, "alice")

	dupName := &models.User{Username: "alice", Email: "other@example.com", Password: "hash"}
	if err := s.CreateUser(context.Background(), dupName); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for username, got %v", err)
	}
	dupEmail := &models.User{Username: "bob", Email: "alice@example.com", Password: "hash"}
	if err := s.CreateUser(context.Background(), dupEmail); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for email, got %v", err)
	}
}

func TestUserLookups_NotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.UserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserByID: expected ErrNotFound, got %v", err)
	}
	if _, err := s.UserByUsername(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserByUsername: expected ErrNotFound, got %v", err)
	}
	createUser(t, s, "alice")
	if _, err := s.UserByUsernameAndEmail(ctx, "alice", "wrong@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserByUsernameAndEmail: expected ErrNotFound, got %v", err)
	}
}

func TestIncrementFailedAttempts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "alice")
	at := time.Now().Truncate(time.Second)

	for want := 1; want <= 3; want++ {
		got, err := s.IncrementFailedAttempts(ctx, u.ID, at)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Expected count %d, got %d", want, got)
		}
	}

	reloaded, _ := s.UserByID(ctx, u.ID)
	if reloaded.LastFailedAttempt == nil || !reloaded.LastFailedAttempt.Equal(at) {
		t.Errorf("Expected last failed attempt %v, got %v", at, reloaded.LastFailedAttempt)
	}

	if err := s.ResetFailedAttempts(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	reloaded, _ = s.UserByID(ctx, u.ID)
	if reloaded.FailedAttempts != 0 {
		t.Errorf("Expected reset counter, got %d", reloaded.FailedAttempts)
	}

	if _, err := s.IncrementFailedAttempts(ctx, "missing", at); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestIncrementFailedAttempts_Concurrent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementFailedAttempts(ctx, u.ID, time.Now()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	reloaded, _ := s.UserByID(ctx, u.ID)
	if reloaded.FailedAttempts != 10 {
		t.Errorf("Expected 10 failed attempts, got %d", reloaded.FailedAttempts)
	}
}

func TestSavePattern_SetupTokenSingleUse(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "alice")

	if err := s.SavePattern(ctx, u.ID, `["phrase-0","image-1","icon-2"]`, "tok-1"); err != nil {
		t.Fatal(err)
	}
	used, err := s.IsSetupTokenUsed(ctx, "tok-1")
	if err != nil || !used {
		t.Fatalf("Expected token to be marked used, got %v %v", used, err)
	}

	err = s.SavePattern(ctx, u.ID, `["icon-2","image-1","phrase-0"]`, "tok-1")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate on second redemption, got %v", err)
	}

	// the failed redemption must not have touched the stored pattern
	reloaded, _ := s.UserByID(ctx, u.ID)
	if reloaded.SecurityPattern == nil || *reloaded.SecurityPattern != `["phrase-0","image-1","icon-2"]` {
		t.Errorf("Pattern changed by rejected redemption: %v", reloaded.SecurityPattern)
	}
	if !reloaded.IsPatternSet {
		t.Error("Expected IsPatternSet")
	}
}

func TestSavePattern_RefusesOverwrite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "alice")

	if err := s.SavePattern(ctx, u.ID, `["phrase-0","image-1","icon-2"]`, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePattern(ctx, u.ID, `["phrase-5","image-5","icon-5"]`, "tok-2"); !errors.Is(err, ErrPatternSet) {
		t.Fatalf("Expected ErrPatternSet, got %v", err)
	}
	if used, _ := s.IsSetupTokenUsed(ctx, "tok-2"); used {
		t.Error("Refused save must roll back the token redemption")
	}
	reloaded, _ := s.UserByID(ctx, u.ID)
	if *reloaded.SecurityPattern != `["phrase-0","image-1","icon-2"]` {
		t.Errorf("Pattern overwritten: %s", *reloaded.SecurityPattern)
	}

	if err := s.SavePattern(ctx, "missing", `["phrase-0","image-1","icon-2"]`, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown user, got %v", err)
	}

	// a cleared pattern can be set again
	s.ClearPattern(ctx, u.ID)
	if err := s.SavePattern(ctx, u.ID, `["phrase-5","image-5","icon-5"]`, ""); err != nil {
		t.Errorf("Expected save after clear to succeed, got %v", err)
	}
}

func TestExpireFailedAttempts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "alice")
	now := time.Now()

	s.IncrementFailedAttempts(ctx, u.ID, now)
	if err := s.ExpireFailedAttempts(ctx, u.ID, now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	reloaded, _ := s.UserByID(ctx, u.ID)
	if reloaded.FailedAttempts != 1 {
		t.Errorf("Expected a recent failure to survive, got %d", reloaded.FailedAttempts)
	}

	if err := s.ExpireFailedAttempts(ctx, u.ID, now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	reloaded, _ = s.UserByID(ctx, u.ID)
	if reloaded.FailedAttempts != 0 {
		t.Errorf("Expected an old failure to expire, got %d", reloaded.FailedAttempts)
	}
}

func TestClearPattern(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "alice")
	other := createUser(t, s, "bob")

	if err := s.SavePattern(ctx, u.ID, `["phrase-0","image-1","icon-2"]`, ""); err != nil {
		t.Fatal(err)
	}
	without, _ := s.UsersWithoutPattern(ctx)
	if len(without) != 1 || without[0].ID != other.ID {
		t.Fatalf("Expected only bob without pattern, got %+v", without)
	}

	if err := s.ClearPattern(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	reloaded, _ := s.UserByID(ctx, u.ID)
	if reloaded.IsPatternSet || reloaded.SecurityPattern != nil {
		t.Errorf("Expected cleared pattern, got %v %v", reloaded.IsPatternSet, reloaded.SecurityPattern)
	}
	without, _ = s.UsersWithoutPattern(ctx)
	if len(without) != 2 {
		t.Errorf("Expected 2 users without pattern, got %d", len(without))
	}
}

func TestSaveSetupOptions_Upsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "alice")

	if _, err := s.SetupOptions(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before creation, got %v", err)
	}

	first := &models.PatternSetupOptions{UserID: u.ID, Phrases: []string{"a"}, Images: []string{"b"}, Icons: []string{"c"}}
	if err := s.SaveSetupOptions(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &models.PatternSetupOptions{UserID: u.ID, Phrases: []string{"x", "y"}, Images: []string{"z"}, Icons: []string{"w"}}
	if err := s.SaveSetupOptions(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := s.SetupOptions(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Phrases) != 2 || got.Phrases[1] != "y" || got.Icons[0] != "w" {
		t.Errorf("Expected replaced options, got %+v", got)
	}
}
