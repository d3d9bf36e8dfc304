package ledger

import (
	"github.com/strataops/atrium/internal/ledger/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger",
	fx.Provide(repository.Provide),
	fx.Provide(NewSweeper),
	fx.Invoke(registerSweeper),
)
