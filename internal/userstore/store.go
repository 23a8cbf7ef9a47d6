package userstore

import "context"

// Store is the keyed mapping from (userId, projectId) to a UserRecord.
// Implementations MUST serialize writes; a read concurrent with a write
// MUST return either the pre- or post-write state, never a torn row, and
// MUST persist across process restarts.
type Store interface {
	Add(ctx context.Context, rec UserRecord) error
	Update(ctx context.Context, rec UserRecord) error
	Delete(ctx context.Context, rec UserRecord) error
	Get(ctx context.Context, userID, projectID string) (UserRecord, error)
	All(ctx context.Context) ([]UserRecord, error)
}

// Upsert overwrites an existing record for the same primary key, or adds a
// new one. This is the overwrite policy spec.md §4.4 requires of
// Registrator: same (userId, projectId) key ⇒ Update, else Add.
func Upsert(ctx context.Context, s Store, rec UserRecord) error {
	_, err := s.Get(ctx, rec.UserID, rec.ProjectID)
	if err == nil {
		return s.Update(ctx, rec)
	}
	if err != ErrNotFound {
		return err
	}
	return s.Add(ctx, rec)
}
