package service_test

import (
	"context"
	"errors"
	"testing"

	"CloudKeep/internal/dto"
	"CloudKeep/internal/service"
)

// TestUploadIntoTrashedFolderRejected verifies uploads cannot target a
// trashed folder.
func TestUploadIntoTrashedFolderRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "uploader", 100)

	folder := env.createFolder(t, user.ID, "gone")
	if err := env.manager.TrashFolder(ctx, user.ID, folder.ID); err != nil {
		t.Fatalf("trash folder failed: %v", err)
	}

	_, err := env.files.UploadAccounted(ctx, user.ID, dto.UploadInput{
		Name: "a", Size: 10, FolderID: &folder.ID,
	})
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("upload into trashed folder = %v, want ErrNotFound", err)
	}
	if got := env.used(t, user.ID); got != 0 {
		t.Fatalf("rejected upload must not reserve bytes, used = %d", got)
	}
}

// TestUploadSanitizesNameAndPrimesCache verifies spaces become underscores
// and the projection is readable without a store round trip.
func TestUploadSanitizesNameAndPrimesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "primer", 100)

	view, err := env.files.UploadAccounted(ctx, user.ID, dto.UploadInput{
		Name: "my holiday photos", Extension: "zip", Size: 10,
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if view.Name != "my_holiday_photos" {
		t.Fatalf("name = %q, want underscores", view.Name)
	}
	if view.FileName != "my_holiday_photos.zip" {
		t.Fatalf("file name = %q", view.FileName)
	}

	cached, ok := env.cache.Get(ctx, view.ID)
	if !ok {
		t.Fatal("upload should prime the cache")
	}
	if cached.UUID != view.UUID {
		t.Fatalf("cached UUID = %q, want %q", cached.UUID, view.UUID)
	}
}

// TestUpdateFileFields verifies rename, move and shelf-life changes,
// including clearing the deadline with a negative value.
func TestUpdateFileFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "editor", 100)

	folder := env.createFolder(t, user.ID, "dest")
	view, err := env.files.UploadAccounted(ctx, user.ID, dto.UploadInput{
		Name: "draft", Extension: "md", Size: 10, ShelfLifeDays: 5,
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	noExpiry := -1
	updated, err := env.files.UpdateFile(ctx, user.ID, view.ID, dto.UpdateFileRequest{
		Name:          "final",
		FolderID:      &folder.ID,
		ShelfLifeDays: &noExpiry,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "final" {
		t.Fatalf("name = %q, want final", updated.Name)
	}
	if updated.FolderID == nil || *updated.FolderID != folder.ID {
		t.Fatalf("folder = %v, want %d", updated.FolderID, folder.ID)
	}
	if updated.ShelfLife != nil {
		t.Fatal("negative shelf life must clear the deadline")
	}

	cached, ok := env.cache.Get(ctx, view.ID)
	if !ok {
		t.Fatal("update should refresh the cache")
	}
	if cached.Name != "final" {
		t.Fatalf("cached name = %q, want final", cached.Name)
	}
}

// TestUpdateTrashedFileRejected verifies trashed files are not editable.
func TestUpdateTrashedFileRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "noedit", 100)

	view := env.upload(t, user.ID, "a", 10, nil)
	if err := env.manager.TrashFile(ctx, user.ID, view.ID); err != nil {
		t.Fatalf("trash failed: %v", err)
	}

	_, err := env.files.UpdateFile(ctx, user.ID, view.ID, dto.UpdateFileRequest{Name: "b"})
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("update trashed file = %v, want ErrNotFound", err)
	}
}

// TestCreateFolderDuplicateName verifies live folder names are unique per
// owner, and a trashed folder frees its name.
func TestCreateFolderDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "owner", 100)

	folder := env.createFolder(t, user.ID, "projects")
	_, err := env.files.CreateFolder(ctx, user.ID, "projects")
	if !errors.Is(err, service.ErrNameTaken) {
		t.Fatalf("duplicate folder = %v, want ErrNameTaken", err)
	}

	if err := env.manager.TrashFolder(ctx, user.ID, folder.ID); err != nil {
		t.Fatalf("trash folder failed: %v", err)
	}
	if _, err := env.files.CreateFolder(ctx, user.ID, "projects"); err != nil {
		t.Fatalf("trashed folder should free the name, got %v", err)
	}
}

// TestListLiveScopedToFolder verifies root and folder listings do not mix.
func TestListLiveScopedToFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "scoper", 100)

	folder := env.createFolder(t, user.ID, "sub")
	inside := env.upload(t, user.ID, "inside", 10, &folder.ID)
	root := env.upload(t, user.ID, "root", 10, nil)

	atRoot, err := env.files.ListLive(ctx, user.ID, nil)
	if err != nil {
		t.Fatalf("list root failed: %v", err)
	}
	if len(atRoot) != 1 || atRoot[0].ID != root.ID {
		t.Fatalf("root listing = %+v, want only %d", atRoot, root.ID)
	}

	inFolder, err := env.files.ListLive(ctx, user.ID, &folder.ID)
	if err != nil {
		t.Fatalf("list folder failed: %v", err)
	}
	if len(inFolder) != 1 || inFolder[0].ID != inside.ID {
		t.Fatalf("folder listing = %+v, want only %d", inFolder, inside.ID)
	}
}
