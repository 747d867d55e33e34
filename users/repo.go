package users

import "context"

// UserRepo is the storage collaborator of the provisioner. Implementations must
// enforce uniqueness of ExternalSubjectID and report a clash from Insert as
// ErrDuplicateKey. Lookups that find nothing return ErrNotFound.
type UserRepo interface {
	FindByExternalID(ctx context.Context, externalSubjectID string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Insert(ctx context.Context, user *User) error
	SetRole(ctx context.Context, id string, role RoleType) error
}
