package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	apikeydomain "github.com/optimosight/vto-gateway/internal/apikey/domain"
	"github.com/optimosight/vto-gateway/internal/organization/domain"
	subscriptiondomain "github.com/optimosight/vto-gateway/internal/subscription/domain"
	usagedomain "github.com/optimosight/vto-gateway/internal/usage/domain"
	"github.com/optimosight/vto-gateway/pkg/db"
	"github.com/optimosight/vto-gateway/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Keys   apikeydomain.Service
	SubSvc subscriptiondomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	keys   apikeydomain.Service
	subSvc subscriptiondomain.Service

	orgRepo  repository.Repository[domain.Organization]
	userRepo repository.Repository[domain.User]
}

func New(p ServiceParam) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("organization.service"),
		genID:    p.GenID,
		keys:     p.Keys,
		subSvc:   p.SubSvc,
		orgRepo:  repository.ProvideStore[domain.Organization](p.DB),
		userRepo: repository.ProvideStore[domain.User](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CreateResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.ContactEmail)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}

	plan, err := s.subSvc.GetByID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	services := req.Services
	if len(services) == 0 {
		services = []string{"vto_makeup"}
	}

	now := time.Now().UTC()
	org := &domain.Organization{
		ID:             s.genID.Generate(),
		Name:           name,
		Slug:           slug.Make(name),
		ContactEmail:   email,
		Domain:         strings.TrimSpace(req.Domain),
		SubscriptionID: plan.ID,
		Services:       datatypes.NewJSONSlice(services),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.orgRepo.Create(ctx, org); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrOrgExists
		}
		return nil, err
	}

	adminName := strings.TrimSpace(req.AdminName)
	if adminName == "" {
		adminName = name + " Admin"
	}
	admin := &domain.User{
		ID:        s.genID.Generate(),
		OrgID:     org.ID,
		Name:      adminName,
		Email:     email,
		Role:      domain.RoleAdmin,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrOrgExists
		}
		return nil, err
	}

	secret, err := s.keys.Issue(ctx, org.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
	)
	return &domain.CreateResponse{
		Organization: *org,
		APIKey:       secret.APIKey,
		AdminUserID:  admin.ID,
	}, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Summary, error) {
	orgs, err := s.orgRepo.Find(ctx, &domain.Organization{})
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.Summary, 0, len(orgs))
	for _, org := range orgs {
		summary, err := s.buildSummary(ctx, org)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Summary, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || orgID == 0 {
		return nil, domain.ErrNotFound
	}
	org, err := s.orgRepo.FindOne(ctx, &domain.Organization{ID: orgID})
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return s.buildSummary(ctx, org)
}

func (s *Service) RotateKey(ctx context.Context, id string) (*domain.RotateKeyResponse, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || orgID == 0 {
		return nil, domain.ErrNotFound
	}
	org, err := s.orgRepo.FindOne(ctx, &domain.Organization{ID: orgID})
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}

	secret, err := s.keys.Rotate(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return &domain.RotateKeyResponse{
		OrgID:  orgID,
		KeyID:  secret.KeyID,
		APIKey: secret.APIKey,
	}, nil
}

func (s *Service) buildSummary(ctx context.Context, org *domain.Organization) (*domain.Summary, error) {
	summary := &domain.Summary{Organization: *org}

	if org.SubscriptionID != 0 {
		var plans []subscriptiondomain.Plan
		if err := s.db.WithContext(ctx).
			Where("id = ?", org.SubscriptionID).
			Limit(1).
			Find(&plans).Error; err != nil {
			return nil, err
		}
		if len(plans) > 0 {
			summary.PlanName = plans[0].PlanName
			summary.APILimit = plans[0].APILimit
		}
	}

	var usageCount int64
	if err := s.db.WithContext(ctx).
		Model(&usagedomain.UsageLog{}).
		Where("org_id = ?", org.ID).
		Count(&usageCount).Error; err != nil {
		return nil, err
	}
	summary.UsageCount = usageCount

	key, err := s.keys.ActiveForOrg(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	if key != nil {
		summary.APIKeyID = key.ID
		issued := key.CreatedAt
		summary.KeyIssued = &issued
	}

	return summary, nil
}
