package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/optimosight/vto-gateway/internal/apikey/domain"
	"github.com/optimosight/vto-gateway/internal/apikey/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Repo  *repository.Repository
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	repo  *repository.Repository
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p ServiceParam) domain.Service {
	return &Service{
		repo:  p.Repo,
		log:   p.Log.Named("apikey.service"),
		genID: p.GenID,
	}
}

func (s *Service) Issue(ctx context.Context, orgID snowflake.ID) (*domain.Secret, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	raw := uuid.NewString()
	key := &domain.APIKey{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		KeyHash:   domain.HashAPIKey(raw),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, err
	}

	s.log.Info("api key issued",
		zap.String("org_id", orgID.String()),
		zap.String("key_id", key.ID.String()),
	)
	return &domain.Secret{KeyID: key.ID, OrgID: orgID, APIKey: raw}, nil
}

func (s *Service) Rotate(ctx context.Context, orgID snowflake.ID) (*domain.Secret, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if err := s.repo.DeactivateForOrg(ctx, orgID); err != nil {
		return nil, err
	}
	return s.Issue(ctx, orgID)
}

func (s *Service) Revoke(ctx context.Context, keyID snowflake.ID) error {
	affected, err := s.repo.Deactivate(ctx, keyID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrKeyNotFound
	}
	s.log.Info("api key revoked", zap.String("key_id", keyID.String()))
	return nil
}

func (s *Service) ActiveForOrg(ctx context.Context, orgID snowflake.ID) (*domain.APIKey, error) {
	return s.repo.FindActiveByOrg(ctx, orgID)
}
