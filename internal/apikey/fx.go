package apikey

import (
	"github.com/optimosight/vto-gateway/internal/apikey/repository"
	"github.com/optimosight/vto-gateway/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
