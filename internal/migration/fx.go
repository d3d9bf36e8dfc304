package migration

import (
	"strings"

	activitydomain "github.com/strataops/atrium/internal/activity/domain"
	associationdomain "github.com/strataops/atrium/internal/association/domain"
	biddomain "github.com/strataops/atrium/internal/bid/domain"
	"github.com/strataops/atrium/internal/config"
	ledgerdomain "github.com/strataops/atrium/internal/ledger/domain"
	"github.com/strataops/atrium/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// The versioned SQL targets postgres. Other dialects exist for
			// local development, where the model definitions are enough.
			if err := conn.AutoMigrate(
				&ledgerdomain.Record{},
				&activitydomain.Event{},
				&associationdomain.Association{},
				&biddomain.Bid{},
				&seed.Organization{},
				&seed.OrganizationMember{},
			); err != nil {
				return err
			}
		}

		if cfg.PlatformOrgID != 0 {
			return seed.EnsurePlatformOrgWithID(conn, cfg.PlatformOrgID)
		}
		return seed.EnsurePlatformOrg(conn)
	}),
)
