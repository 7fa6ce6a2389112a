package service

import "errors"

var (
	// ErrQuotaExceeded means an upload or restore would exceed the user's
	// limit. Nothing was mutated.
	ErrQuotaExceeded = errors.New("not enough free disk space")

	// ErrNotFound means the referenced file or folder is absent or already
	// purged.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCascade means a folder operation would cascade onto live
	// members: purging a folder that still has non-trashed files, or
	// restoring a file whose parent folder is still trashed.
	ErrInvalidCascade = errors.New("folder has live members")

	// ErrNameTaken means a live folder with the same name already exists in
	// the owner's namespace.
	ErrNameTaken = errors.New("folder already exists")
)
