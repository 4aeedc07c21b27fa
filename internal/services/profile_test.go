package services_test

import (
	"context"
	"strings"
	"testing"

	"github.com/lostboard/apiserver/internal/services"
	"github.com/lostboard/apiserver/internal/services/servicestest"
	"github.com/lostboard/apiserver/types"
)

type profileFixture struct {
	svc     *services.ProfileService
	users   *servicestest.Users
	objects *servicestest.Objects
	alice   types.User
}

func newProfileFixture(t *testing.T) profileFixture {
	t.Helper()
	users := servicestest.NewUsers()
	objects := servicestest.NewObjects()
	images := services.NewImageStore(objects, "/uploads/", 1<<20)

	alice, err := users.Create(context.Background(), types.User{Username: "alice", Email: "alice@x.com", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	if _, err := users.Create(context.Background(), types.User{Username: "bob", Email: "bob@x.com", PasswordHash: "hash"}); err != nil {
		t.Fatalf("seed bob: %v", err)
	}
	return profileFixture{
		svc:     services.NewProfileService(users, images, nil),
		users:   users,
		objects: objects,
		alice:   alice,
	}
}

func strPtr(s string) *string { return &s }

func TestGetSelf(t *testing.T) {
	f := newProfileFixture(t)

	user, err := f.svc.GetSelf(context.Background(), f.alice.ID)
	if err != nil {
		t.Fatalf("get self: %v", err)
	}
	if user.Username != "alice" || user.ProfilePic != nil {
		t.Fatalf("unexpected user %+v", user)
	}

	_, err = f.svc.GetSelf(context.Background(), 999)
	expectKind(t, err, services.KindNotFound)

	_, err = f.svc.GetSelf(context.Background(), 0)
	expectKind(t, err, services.KindUnauthenticated)
}

func TestUpdateContactNumber(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateSelf(ctx, f.alice.ID, services.ProfileUpdate{
		Username: "alice", Email: "alice@x.com", ContactNumber: strPtr("abc-def"),
	})
	expectKind(t, err, services.KindInvalidArgument)

	updated, err := f.svc.UpdateSelf(ctx, f.alice.ID, services.ProfileUpdate{
		Username: "alice", Email: "alice@x.com", ContactNumber: strPtr("+1 (555) 123-4567"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ContactNumber == nil || *updated.ContactNumber != "+1 (555) 123-4567" {
		t.Fatalf("unexpected contact %v", updated.ContactNumber)
	}

	kept, err := f.svc.UpdateSelf(ctx, f.alice.ID, services.ProfileUpdate{Username: "alice", Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("update without contact: %v", err)
	}
	if kept.ContactNumber == nil || *kept.ContactNumber != "+1 (555) 123-4567" {
		t.Fatalf("expected contact to be retained, got %v", kept.ContactNumber)
	}

	cleared, err := f.svc.UpdateSelf(ctx, f.alice.ID, services.ProfileUpdate{
		Username: "alice", Email: "alice@x.com", ContactNumber: strPtr("  "),
	})
	if err != nil {
		t.Fatalf("clear contact: %v", err)
	}
	if cleared.ContactNumber != nil {
		t.Fatalf("expected contact to be cleared, got %q", *cleared.ContactNumber)
	}
}

func TestUpdateConflicts(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateSelf(ctx, f.alice.ID, services.ProfileUpdate{Username: "bob", Email: "alice@x.com"})
	expectKind(t, err, services.KindConflict)

	_, err = f.svc.UpdateSelf(ctx, f.alice.ID, services.ProfileUpdate{Username: "alice", Email: "bob@x.com"})
	expectKind(t, err, services.KindConflict)

	renamed, err := f.svc.UpdateSelf(ctx, f.alice.ID, services.ProfileUpdate{Username: "alice2", Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Username != "alice2" {
		t.Fatalf("expected re-read username alice2, got %q", renamed.Username)
	}
}

func TestUpdateRequiresUsernameAndEmail(t *testing.T) {
	f := newProfileFixture(t)

	_, err := f.svc.UpdateSelf(context.Background(), f.alice.ID, services.ProfileUpdate{Username: "", Email: "a@x.com"})
	expectKind(t, err, services.KindInvalidArgument)

	_, err = f.svc.UpdateSelf(context.Background(), 0, services.ProfileUpdate{Username: "a", Email: "a@x.com"})
	expectKind(t, err, services.KindUnauthenticated)
}

func TestUpdateProfilePictureReplacesOld(t *testing.T) {
	f := newProfileFixture(t)
	ctx := context.Background()
	pic := &services.Upload{Filename: "me.png", Data: servicestest.PNG}

	first, err := f.svc.UpdateSelf(ctx, f.alice.ID, services.ProfileUpdate{Username: "alice", Email: "alice@x.com", ProfilePic: pic})
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if first.ProfilePic == nil || !strings.HasPrefix(*first.ProfilePic, "/uploads/profiles/") {
		t.Fatalf("unexpected profile pic %v", first.ProfilePic)
	}

	second, err := f.svc.UpdateSelf(ctx, f.alice.ID, services.ProfileUpdate{Username: "alice", Email: "alice@x.com", ProfilePic: pic})
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	keys := f.objects.Keys()
	if len(keys) != 1 || "/uploads/"+keys[0] != *second.ProfilePic {
		t.Fatalf("expected only the new picture to remain, got %v", keys)
	}

	kept, err := f.svc.UpdateSelf(ctx, f.alice.ID, services.ProfileUpdate{Username: "alice", Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("update without picture: %v", err)
	}
	if kept.ProfilePic == nil || *kept.ProfilePic != *second.ProfilePic {
		t.Fatalf("expected picture to be retained, got %v", kept.ProfilePic)
	}
}

func TestUpdateConflictRemovesNewPicture(t *testing.T) {
	f := newProfileFixture(t)

	_, err := f.svc.UpdateSelf(context.Background(), f.alice.ID, services.ProfileUpdate{
		Username:   "bob",
		Email:      "alice@x.com",
		ProfilePic: &services.Upload{Filename: "me.png", Data: servicestest.PNG},
	})
	expectKind(t, err, services.KindConflict)
	if keys := f.objects.Keys(); len(keys) != 0 {
		t.Fatalf("expected rejected upload to be removed, got %v", keys)
	}
}
