package activity

import (
	"github.com/strataops/atrium/internal/activity/repository"
	"github.com/strataops/atrium/internal/activity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("activity",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewRecorder),
	fx.Provide(service.NewQuery),
)
