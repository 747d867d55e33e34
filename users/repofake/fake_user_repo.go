package fakeuserrepo

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-session-broker/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

// FakeUserRepo keeps profiles in memory. externalIDs acts as the unique index
// on ExternalSubjectID.
type FakeUserRepo struct {
	users       map[string]*users.User
	externalIDs map[string]string // external subject id to user id
	lock        sync.RWMutex

	// InsertHook runs before the unique check; tests use it to widen race windows.
	InsertHook func()
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:       make(map[string]*users.User),
		externalIDs: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Insert(_ context.Context, user *users.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if ur.InsertHook != nil {
		ur.InsertHook()
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.externalIDs[user.ExternalSubjectID]; ok {
		return users.ErrDuplicateKey
	}
	stored := *user
	ur.users[user.ID] = &stored
	ur.externalIDs[user.ExternalSubjectID] = user.ID
	return nil
}

func (ur *FakeUserRepo) FindByExternalID(_ context.Context, externalSubjectID string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.externalIDs[externalSubjectID]
	if !ok {
		return nil, users.ErrNotFound
	}
	u := *ur.users[id]
	return &u, nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	stored, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	u := *stored
	return &u, nil
}

func (ur *FakeUserRepo) SetRole(_ context.Context, id string, role users.RoleType) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	stored, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	stored.Role = role
	return nil
}

// Delete removes a profile. The broker never deletes profiles; tests use this to
// simulate a local account revoked by the user service.
func (ur *FakeUserRepo) Delete(id string) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if u, ok := ur.users[id]; ok {
		delete(ur.externalIDs, u.ExternalSubjectID)
		delete(ur.users, id)
	}
}

// Count returns the number of stored profiles
func (ur *FakeUserRepo) Count() int {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return len(ur.users)
}
