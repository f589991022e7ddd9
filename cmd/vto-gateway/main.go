package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/optimosight/vto-gateway/internal/config"
	"github.com/optimosight/vto-gateway/internal/migration"
	obslogger "github.com/optimosight/vto-gateway/internal/observability/logger"
	obsmetrics "github.com/optimosight/vto-gateway/internal/observability/metrics"
	"github.com/optimosight/vto-gateway/internal/server"
	"github.com/optimosight/vto-gateway/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		obslogger.Module,
		obsmetrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
