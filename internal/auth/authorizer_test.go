package auth

import "testing"

func TestEngine_Check(t *testing.T) {
	db := testDB(t)
	ctx := t.Context()
	engine := NewEngine()

	admin := seedTestUser(t, db, "admin", RoleAdmin)
	alice := seedTestUser(t, db, "alice", RoleUser)
	bob := seedTestUser(t, db, "bob", RoleUser)
	staff := seedTestGroup(t, db, "staff")
	other := seedTestGroup(t, db, "other")
	if err := NewMembershipRepository(db).Create(ctx, &Membership{UserID: alice.ID, GroupID: staff.ID}); err != nil {
		t.Fatalf("creating membership: %v", err)
	}
	inactive := &User{ID: admin.ID, Role: RoleAdmin, IsActive: false}

	tests := []struct {
		name  string
		user  *User
		perm  Permission
		param ActionParam
		want  bool
	}{
		{"nil identity", nil, PermAccessPointRead, ActionParam{}, false},
		{"inactive admin", inactive, PermUserRead, ActionParam{UserID: 1}, false},
		{"admin reads anyone", admin, PermUserRead, ActionParam{UserID: bob.ID}, true},
		{"admin cannot manage owners", admin, PermUserManageOwner, ActionParam{}, false},
		{"user reads self", alice, PermUserRead, ActionParam{UserID: alice.ID}, true},
		{"user updates self", alice, PermUserUpdate, ActionParam{UserID: alice.ID}, true},
		{"user reads other", alice, PermUserRead, ActionParam{UserID: bob.ID}, false},
		{"user deletes self", alice, PermUserDelete, ActionParam{UserID: alice.ID}, false},
		{"user reads own memberships", alice, PermMembershipRead, ActionParam{UserID: alice.ID}, true},
		{"user reads own group", alice, PermGroupRead, ActionParam{GroupID: staff.ID}, true},
		{"user reads foreign group", alice, PermGroupRead, ActionParam{GroupID: other.ID}, false},
		{"user group read without id", alice, PermGroupRead, ActionParam{}, false},
		{"user reads access points", bob, PermAccessPointRead, ActionParam{}, true},
		{"user reads logs", alice, PermLogRead, ActionParam{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Check(ctx, db, tt.user, tt.perm, tt.param)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}
