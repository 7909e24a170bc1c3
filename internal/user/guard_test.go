package user

import (
	"context"
	"errors"
	"testing"
)

func adminEnabled() Configuration  { return Configuration{IsAdministrator: true} }
func plainEnabled() Configuration  { return Configuration{} }
func plainDisabled() Configuration { return Configuration{IsDisabled: true} }

func TestUpdateRejectsStrippingLastAdmin(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	a := mustCreateUser(t, store, "a", adminEnabled())
	mustCreateUser(t, store, "b", plainEnabled())

	_, err := store.Update(ctx, a.ID, UpdateRequest{Name: "a", Configuration: plainEnabled()})
	if !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("err = %v, want ErrLastAdmin", err)
	}

	// The rejected update must not have touched the store.
	got, _ := store.GetByID(ctx, a.ID)
	if !got.Configuration.IsAdministrator {
		t.Error("admin flag was mutated by a rejected update")
	}
}

func TestUpdateAllowsStrippingAdminWhenAnotherExists(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	a := mustCreateUser(t, store, "a", adminEnabled())
	mustCreateUser(t, store, "b", adminEnabled())

	updated, err := store.Update(ctx, a.ID, UpdateRequest{Name: "a", Configuration: plainEnabled()})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Configuration.IsAdministrator {
		t.Error("admin flag should be cleared")
	}
}

func TestUpdateRejectsDisablingAdminEvenWithOtherAdmins(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	a := mustCreateUser(t, store, "a", adminEnabled())
	mustCreateUser(t, store, "b", adminEnabled())

	_, err := store.Update(ctx, a.ID, UpdateRequest{
		Name:          "a",
		Configuration: Configuration{IsAdministrator: true, IsDisabled: true},
	})
	if !errors.Is(err, ErrAdminDisabled) {
		t.Fatalf("err = %v, want ErrAdminDisabled", err)
	}
}

func TestUpdateRejectsDisablingLastEnabledAccount(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	a := mustCreateUser(t, store, "a", plainEnabled())
	mustCreateUser(t, store, "b", plainDisabled())

	_, err := store.Update(ctx, a.ID, UpdateRequest{Name: "a", Configuration: plainDisabled()})
	if !errors.Is(err, ErrLastEnabled) {
		t.Fatalf("err = %v, want ErrLastEnabled", err)
	}
}

func TestUpdateAllowsDisablingWhenAnotherEnabledExists(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	a := mustCreateUser(t, store, "a", plainEnabled())
	mustCreateUser(t, store, "b", plainEnabled())

	updated, err := store.Update(ctx, a.ID, UpdateRequest{Name: "a", Configuration: plainDisabled()})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.Configuration.IsDisabled {
		t.Error("disabled flag should be set")
	}
}

// The full scenario from the design discussion: one admin A, one regular B.
func TestUpdateScenarioAdminAndRegular(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	a := mustCreateUser(t, store, "A", adminEnabled())
	b := mustCreateUser(t, store, "B", plainEnabled())

	// Disable A: rejected, administrators cannot be disabled.
	_, err := store.Update(ctx, a.ID, UpdateRequest{
		Name:          "A",
		Configuration: Configuration{IsAdministrator: true, IsDisabled: true},
	})
	if !errors.Is(err, ErrAdminDisabled) {
		t.Fatalf("disable A: err = %v, want ErrAdminDisabled", err)
	}

	// Remove admin from A: rejected, A is the last administrator.
	_, err = store.Update(ctx, a.ID, UpdateRequest{Name: "A", Configuration: plainEnabled()})
	if !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("strip A: err = %v, want ErrLastAdmin", err)
	}

	// Disable B: accepted.
	if _, err := store.Update(ctx, b.ID, UpdateRequest{Name: "B", Configuration: plainDisabled()}); err != nil {
		t.Fatalf("disable B: %v", err)
	}

	// Now disabling A is still rejected (admin rule fires before the
	// last-enabled rule would).
	_, err = store.Update(ctx, a.ID, UpdateRequest{
		Name:          "A",
		Configuration: Configuration{IsAdministrator: true, IsDisabled: true},
	})
	if !errors.Is(err, ErrAdminDisabled) {
		t.Fatalf("disable A after B disabled: err = %v, want ErrAdminDisabled", err)
	}
}

func TestUpdateRenamesThenConfigures(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	a := mustCreateUser(t, store, "a", adminEnabled())
	mustCreateUser(t, store, "b", adminEnabled())

	updated, err := store.Update(ctx, a.ID, UpdateRequest{
		Name:          "alice",
		Configuration: Configuration{IsAdministrator: true, IsHidden: true},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "alice" {
		t.Errorf("Name = %q, want alice", updated.Name)
	}
	if !updated.Configuration.IsHidden {
		t.Error("hidden flag should be set")
	}

	got, err := store.GetByName(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByName after rename: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("rename not persisted, got id %s", got.ID)
	}
}

func TestUpdateRenameRejectsTakenName(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	a := mustCreateUser(t, store, "a", adminEnabled())
	mustCreateUser(t, store, "b", plainEnabled())

	_, err := store.Update(ctx, a.ID, UpdateRequest{Name: "B", Configuration: adminEnabled()})
	if !errors.Is(err, ErrNameTaken) {
		t.Fatalf("err = %v, want ErrNameTaken", err)
	}
}

func TestUpdateUnknownUser(t *testing.T) {
	store := NewStore(setupTestDB(t))

	_, err := store.Update(context.Background(), "missing", UpdateRequest{Name: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCheckInvariantsRuleOrder(t *testing.T) {
	// An update that would trip both the last-admin and admin-disable rules
	// reports the last-admin rule first.
	current := &User{Configuration: adminEnabled()}
	proposed := Configuration{IsAdministrator: false, IsDisabled: true}

	err := checkInvariants(current, proposed, 1, 2)
	if !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("err = %v, want ErrLastAdmin first", err)
	}
}
