package store

import (
	"context"
	"testing"

	"github.com/erazemk/orozarna/internal/db"
	"github.com/erazemk/orozarna/internal/model"
)

func TestCreateUserStoresRoleAndVerification(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "mojca", "hash", model.RoleArmorer, true)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Role != model.RoleArmorer || !user.VerifiedAdult {
		t.Errorf("got role %q verified %v", user.Role, user.VerifiedAdult)
	}
	if user.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	got, err := GetUserByUsername(ctx, database, "mojca")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatalf("expected user %d, got %+v", user.ID, got)
	}

	missing, err := GetUserByUsername(ctx, database, "nobody")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	database := db.NewTestDB(t)

	if _, err := CreateUser(context.Background(), database, "x", "hash", "superuser", false); err == nil {
		t.Fatal("expected role check constraint to reject unknown role")
	}
}

func TestUpdateUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "janez", "hash", model.RoleMember, false)
	if err := UpdateUser(ctx, database, user.ID, model.RoleCoach, true); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if err := UpdateUserPassword(ctx, database, user.ID, "newhash"); err != nil {
		t.Fatalf("UpdateUserPassword: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.Role != model.RoleCoach || !got.VerifiedAdult {
		t.Errorf("got role %q verified %v", got.Role, got.VerifiedAdult)
	}
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}

func TestDeletedUsernameCanBeReused(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, _ := CreateUser(ctx, database, "ana", "hash", model.RoleMember, false)
	if err := DeleteUser(ctx, database, first.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	users, _ := ListUsers(ctx, database)
	if len(users) != 0 {
		t.Errorf("expected 0 active users after delete, got %d", len(users))
	}

	if _, err := CreateUser(ctx, database, "ana", "hash", model.RoleMember, false); err != nil {
		t.Fatalf("recreating deleted username: %v", err)
	}

	// The soft-deleted row stays readable by id for history snapshots.
	old, _ := GetUser(ctx, database, first.ID)
	if old == nil || old.DeletedAt == nil {
		t.Errorf("expected soft-deleted user, got %+v", old)
	}
}
