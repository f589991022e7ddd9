package domain

import (
	"context"
	"errors"
)

type Service interface {
	List(ctx context.Context) ([]Plan, error)
	Create(ctx context.Context, req CreateRequest) (*Plan, error)
	GetByID(ctx context.Context, id string) (*Plan, error)
	Subscribe(ctx context.Context, orgID, planID string) error
}

type CreateRequest struct {
	PlanName      string         `json:"plan_name"`
	Price         float64        `json:"price"`
	APILimit      int64          `json:"api_limit"`
	BillingPeriod string         `json:"billing_period"`
	Features      map[string]any `json:"features"`
	Services      []string       `json:"services"`
}

var (
	ErrInvalidPlanName = errors.New("invalid_plan_name")
	ErrInvalidAPILimit = errors.New("invalid_api_limit")
	ErrPlanExists      = errors.New("plan_exists")
	ErrPlanNotFound    = errors.New("plan_not_found")
	ErrOrgNotFound     = errors.New("organization_not_found")
)
