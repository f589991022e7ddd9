// Package seed bootstraps the default subscription plans on startup.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	subscriptiondomain "github.com/optimosight/vto-gateway/internal/subscription/domain"
)

var defaultPlans = []subscriptiondomain.Plan{
	{PlanName: "Basic", Price: 99.99, APILimit: 10000, BillingPeriod: "monthly"},
	{PlanName: "Pro", Price: 199.99, APILimit: 50000, BillingPeriod: "monthly"},
	{PlanName: "Enterprise", Price: 499.99, APILimit: 100000, BillingPeriod: "yearly"},
}

// EnsureDefaultPlans inserts the built-in plans when they are missing.
// Existing rows are left untouched so operators can reprice them.
func EnsureDefaultPlans(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range defaultPlans {
			var existing subscriptiondomain.Plan
			err := tx.Where("plan_name = ?", plan.PlanName).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			plan.ID = node.Generate()
			plan.Services = datatypes.NewJSONSlice([]string{"vto_makeup"})
			if err := tx.Create(&plan).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
