package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/optimosight/vto-gateway/internal/organization/domain"
	"github.com/optimosight/vto-gateway/internal/subscription/domain"
	"github.com/optimosight/vto-gateway/pkg/db"
	"github.com/optimosight/vto-gateway/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	planRepo repository.Repository[domain.Plan]
}

func New(p ServiceParam) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		planRepo: repository.ProvideStore[domain.Plan](p.DB),
	}
}

func (s *Service) List(ctx context.Context) ([]domain.Plan, error) {
	items, err := s.planRepo.Find(ctx, &domain.Plan{})
	if err != nil {
		return nil, err
	}
	plans := make([]domain.Plan, 0, len(items))
	for _, item := range items {
		plans = append(plans, *item)
	}
	return plans, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Plan, error) {
	name := strings.TrimSpace(req.PlanName)
	if name == "" {
		return nil, domain.ErrInvalidPlanName
	}
	if req.APILimit <= 0 {
		return nil, domain.ErrInvalidAPILimit
	}

	services := req.Services
	if len(services) == 0 {
		services = []string{"vto_makeup"}
	}

	now := time.Now().UTC()
	plan := &domain.Plan{
		ID:            s.genID.Generate(),
		PlanName:      name,
		Price:         req.Price,
		APILimit:      req.APILimit,
		BillingPeriod: strings.TrimSpace(req.BillingPeriod),
		Services:      datatypes.NewJSONSlice(services),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Features != nil {
		plan.Features = datatypes.JSONMap(req.Features)
	}

	if err := s.planRepo.Create(ctx, plan); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrPlanExists
		}
		return nil, err
	}
	s.log.Info("subscription plan created", zap.String("plan", plan.PlanName))
	return plan, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || planID == 0 {
		return nil, domain.ErrPlanNotFound
	}
	plan, err := s.planRepo.FindOne(ctx, &domain.Plan{ID: planID})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) Subscribe(ctx context.Context, orgID, planID string) error {
	plan, err := s.GetByID(ctx, planID)
	if err != nil {
		return err
	}

	id, err := snowflake.ParseString(strings.TrimSpace(orgID))
	if err != nil || id == 0 {
		return domain.ErrOrgNotFound
	}

	result := s.db.WithContext(ctx).
		Model(&orgdomain.Organization{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"subscription_id": plan.ID,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrOrgNotFound
	}
	s.log.Info("organization subscribed",
		zap.String("org_id", orgID),
		zap.String("plan", plan.PlanName),
	)
	return nil
}
