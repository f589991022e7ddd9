// Package migration creates the schema on startup so the gateway is usable
// out of the box on sqlite, mysql, and postgres alike.
package migration

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	apikeydomain "github.com/optimosight/vto-gateway/internal/apikey/domain"
	guestdomain "github.com/optimosight/vto-gateway/internal/guest/domain"
	organizationdomain "github.com/optimosight/vto-gateway/internal/organization/domain"
	"github.com/optimosight/vto-gateway/internal/seed"
	subscriptiondomain "github.com/optimosight/vto-gateway/internal/subscription/domain"
	usagedomain "github.com/optimosight/vto-gateway/internal/usage/domain"
)

// Migrate applies the schema for every owned table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&subscriptiondomain.Plan{},
		&organizationdomain.Organization{},
		&organizationdomain.User{},
		&apikeydomain.APIKey{},
		&usagedomain.UsageLog{},
		&usagedomain.TryonSession{},
		&guestdomain.GuestUsage{},
	)
}

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, node *snowflake.Node) error {
		if err := Migrate(conn); err != nil {
			return err
		}
		return seed.EnsureDefaultPlans(conn, node)
	}),
)
