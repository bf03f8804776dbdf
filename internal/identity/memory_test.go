package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice@example.com", false); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Email comparison is case-insensitive.
	_, err := s.CreateUser(ctx, "Alice@Example.COM", false)
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("CreateUser(dup) = %v, want ErrDuplicateEmail", err)
	}
}

func TestFindUserAbsentReturnsNil(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	u, err := s.FindUserByEmail(ctx, "ghost@example.com")
	if err != nil || u != nil {
		t.Errorf("FindUserByEmail(absent) = (%v, %v), want (nil, nil)", u, err)
	}

	u, err = s.FindUserByID(ctx, uuid.New())
	if err != nil || u != nil {
		t.Errorf("FindUserByID(absent) = (%v, %v), want (nil, nil)", u, err)
	}

	u, err = s.FindUserByFederatedIdentity(ctx, "google", "sub-1")
	if err != nil || u != nil {
		t.Errorf("FindUserByFederatedIdentity(absent) = (%v, %v), want (nil, nil)", u, err)
	}
}

func TestLinkLocalAccount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "bob@example.com", false)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := s.LinkLocalAccount(ctx, user.ID, "bob", "hash-1", "bcrypt"); err != nil {
		t.Fatalf("LinkLocalAccount: %v", err)
	}

	// Username comparison is case-insensitive too.
	other, _ := s.CreateUser(ctx, "mallory@example.com", false)
	err = s.LinkLocalAccount(ctx, other.ID, "BOB", "hash-2", "bcrypt")
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("LinkLocalAccount(dup username) = %v, want ErrDuplicateUsername", err)
	}

	// Linking to a user that does not exist fails cleanly.
	err = s.LinkLocalAccount(ctx, uuid.New(), "nobody", "hash-3", "bcrypt")
	if !errors.Is(err, ErrUnknownUser) {
		t.Errorf("LinkLocalAccount(unknown user) = %v, want ErrUnknownUser", err)
	}

	account, owner, err := s.FindLocalAccount(ctx, "Bob")
	if err != nil {
		t.Fatalf("FindLocalAccount: %v", err)
	}
	if account == nil || owner == nil {
		t.Fatal("FindLocalAccount returned nil for linked account")
	}
	if owner.ID != user.ID {
		t.Errorf("owner = %v, want %v", owner.ID, user.ID)
	}
	if account.PasswordHash != "hash-1" {
		t.Errorf("PasswordHash = %q, want %q", account.PasswordHash, "hash-1")
	}
}

func TestUpdateLocalPassword(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "carol@example.com", false)
	if err := s.LinkLocalAccount(ctx, user.ID, "carol", "old-hash", "bcrypt"); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateLocalPassword(ctx, user.ID, "carol", "new-hash", "bcrypt"); err != nil {
		t.Fatalf("UpdateLocalPassword: %v", err)
	}
	account, _, _ := s.FindLocalAccount(ctx, "carol")
	if account.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %q, want %q", account.PasswordHash, "new-hash")
	}

	// The account must belong to the given user.
	err := s.UpdateLocalPassword(ctx, uuid.New(), "carol", "evil-hash", "bcrypt")
	if !errors.Is(err, ErrUnknownUser) {
		t.Errorf("UpdateLocalPassword(wrong owner) = %v, want ErrUnknownUser", err)
	}
}

func TestFindOrCreateFederatedUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// First assertion creates the user.
	first, err := s.FindOrCreateFederatedUser(ctx, "google", "sub-42", "dave@example.com", true)
	if err != nil {
		t.Fatalf("FindOrCreateFederatedUser: %v", err)
	}

	// Replay with the same (provider, subject) resolves the same user.
	again, err := s.FindOrCreateFederatedUser(ctx, "google", "sub-42", "dave@example.com", true)
	if err != nil {
		t.Fatalf("FindOrCreateFederatedUser(replay): %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("replay created a new user: %v != %v", again.ID, first.ID)
	}

	// A different provider with the same email merges by email.
	merged, err := s.FindOrCreateFederatedUser(ctx, "keycloak", "kc-7", "dave@example.com", true)
	if err != nil {
		t.Fatalf("FindOrCreateFederatedUser(merge): %v", err)
	}
	if merged.ID != first.ID {
		t.Errorf("email merge created a new user: %v != %v", merged.ID, first.ID)
	}
}

func TestFindOrCreateFederatedUserConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 16
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := s.FindOrCreateFederatedUser(ctx, "google", "sub-race", "race@example.com", true)
			if err != nil {
				t.Errorf("FindOrCreateFederatedUser: %v", err)
				return
			}
			ids[i] = u.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent callers resolved different users: %v != %v", ids[i], ids[0])
		}
	}
}

func TestConcurrentCreateUserOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var created, dups int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateUser(ctx, "contended@example.com", false)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicateEmail):
				dups++
			default:
				t.Errorf("CreateUser: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || dups != n-1 {
		t.Errorf("created=%d dups=%d, want exactly one winner", created, dups)
	}
}

func TestConcurrentLinkLocalAccountOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 16
	users := make([]*User, n)
	for i := 0; i < n; i++ {
		u, err := s.CreateUser(ctx, fmt.Sprintf("racer%d@example.com", i), false)
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		users[i] = u
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var linked, dups int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.LinkLocalAccount(ctx, users[i].ID, "contended", "hash", "bcrypt")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				linked++
			case errors.Is(err, ErrDuplicateUsername):
				dups++
			default:
				t.Errorf("LinkLocalAccount: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if linked != 1 || dups != n-1 {
		t.Errorf("linked=%d dups=%d, want exactly one winner", linked, dups)
	}
}

func TestLinkFederatedAccountDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, _ := s.CreateUser(ctx, "a@example.com", false)
	b, _ := s.CreateUser(ctx, "b@example.com", false)

	if err := s.LinkFederatedAccount(ctx, a.ID, "google", "sub-9"); err != nil {
		t.Fatalf("LinkFederatedAccount: %v", err)
	}
	err := s.LinkFederatedAccount(ctx, b.ID, "google", "sub-9")
	if !errors.Is(err, ErrDuplicateFederatedIdentity) {
		t.Errorf("LinkFederatedAccount(dup) = %v, want ErrDuplicateFederatedIdentity", err)
	}
}
