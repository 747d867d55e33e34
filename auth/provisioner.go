package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Provisioner maps external identities to local profiles, creating the
// profile on first use. Concurrent first use is resolved by the store's
// unique index on the external subject id, not by locking here.
type Provisioner struct {
	repo    users.UserRepo
	newID   func() string
	nowTime func() time.Time
}

// ProvisionerOption defines a function type to modify the Provisioner instance.
type ProvisionerOption func(*Provisioner)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ProvisionerOption {
	return func(p *Provisioner) {
		p.nowTime = nowFunc
	}
}

// WithIDGenerator sets the profile id generator (primarily for testing)
func WithIDGenerator(newID func() string) ProvisionerOption {
	return func(p *Provisioner) {
		p.newID = newID
	}
}

func NewProvisioner(repo users.UserRepo, opts ...ProvisionerOption) (*Provisioner, error) {
	if repo == nil {
		return nil, errors.New("[NewProvisioner] Users repo is required")
	}
	p := &Provisioner{
		repo:    repo,
		newID:   uuid.NewString,
		nowTime: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// GetOrCreate returns the profile for externalSubjectID, creating it with the
// default role when it does not exist yet. Losing an insert race is not an
// error: the winner's profile is returned.
func (p *Provisioner) GetOrCreate(ctx context.Context, externalSubjectID, email string) (*users.User, error) {
	if externalSubjectID == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[GetOrCreate] external subject id is required")
	}

	user, err := p.repo.FindByExternalID(ctx, externalSubjectID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		return nil, errors.Wrap(err, "[GetOrCreate] find profile")
	}

	user = users.NewUser(p.newID(), externalSubjectID, email, p.nowTime())
	err = p.repo.Insert(ctx, user)
	if errors.Is(err, users.ErrDuplicateKey) {
		existing, findErr := p.repo.FindByExternalID(ctx, externalSubjectID)
		if findErr != nil {
			return nil, errors.Wrap(findErr, "[GetOrCreate] re-fetch after duplicate insert")
		}
		return existing, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[GetOrCreate] insert profile")
	}

	log.Info().Str("user_id", user.ID).Str("subject", externalSubjectID).Msg("Provisioned local profile")
	return user, nil
}
