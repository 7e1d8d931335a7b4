package repository

import "errors"

// ErrConflict is returned by Save when the stored conversation moved past the
// version the caller read. Save on a conversation with Version 0 conflicts
// when one already exists.
var ErrConflict = errors.New("repository: conversation version conflict")
