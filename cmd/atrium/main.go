package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/strataops/atrium/internal/config"
	"github.com/strataops/atrium/internal/logger"
	"github.com/strataops/atrium/internal/migration"
	"github.com/strataops/atrium/internal/server"
	"github.com/strataops/atrium/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		server.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}
