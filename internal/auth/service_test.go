package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenService_Authenticate(t *testing.T) {
	db := testDB(t)
	svc := NewTokenService(testSecret, time.Hour)
	ctx := t.Context()

	alice := seedTestUser(t, db, "alice", RoleUser)
	inactive := seedTestUser(t, db, "bob", RoleUser)
	inactive.IsActive = false
	if err := NewUserRepository(db).Update(ctx, inactive); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"valid", "alice", "test-password", nil},
		{"wrong password", "alice", "nope", ErrInvalidCredentials},
		{"unknown user", "ghost", "test-password", ErrInvalidCredentials},
		{"inactive", "bob", "test-password", ErrUserInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.Authenticate(ctx, db, tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && user.ID != alice.ID {
				t.Errorf("Authenticate() user = %d, want %d", user.ID, alice.ID)
			}
		})
	}
}

func TestTokenService_IssueValidateRevoke(t *testing.T) {
	db := testDB(t)
	svc := NewTokenService(testSecret, time.Hour)
	ctx := t.Context()
	alice := seedTestUser(t, db, "alice", RoleAdmin)

	signed, tok, err := svc.IssueToken(ctx, db, alice)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if d := time.Until(tok.ExpiresAt); d < 59*time.Minute || d > time.Hour+time.Second {
		t.Errorf("ExpiresAt in %v, want about 1h", d)
	}

	user, got, err := svc.ValidateToken(ctx, db, signed)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if user.ID != alice.ID || got.ID != tok.ID {
		t.Errorf("ValidateToken() = user %d token %s", user.ID, got.ID)
	}

	if err := svc.RevokeToken(ctx, db, tok.ID); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}
	if _, _, err := svc.ValidateToken(ctx, db, signed); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("ValidateToken() after revoke error = %v, want ErrTokenRevoked", err)
	}
	if _, err := svc.CheckToken(ctx, db, tok.ID); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("CheckToken() after revoke error = %v, want ErrTokenRevoked", err)
	}
}

func TestTokenService_CheckTokenExpired(t *testing.T) {
	db := testDB(t)
	svc := NewTokenService(testSecret, time.Hour)
	ctx := t.Context()
	alice := seedTestUser(t, db, "alice", RoleUser)

	_, tok, err := svc.IssueToken(ctx, db, alice)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.CheckToken(ctx, db, tok.ID); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("CheckToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestTokenService_ValidateDeletedUser(t *testing.T) {
	db := testDB(t)
	svc := NewTokenService(testSecret, 0)
	ctx := t.Context()
	alice := seedTestUser(t, db, "alice", RoleUser)

	signed, _, err := svc.IssueToken(ctx, db, alice)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if err := NewUserRepository(db).Delete(ctx, alice.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	// The token row cascades away with the user.
	if _, _, err := svc.ValidateToken(ctx, db, signed); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ValidateToken() error = %v, want ErrTokenInvalid", err)
	}
}
