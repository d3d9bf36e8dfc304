package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/strataops/atrium/internal/activity"
	activitydomain "github.com/strataops/atrium/internal/activity/domain"
	"github.com/strataops/atrium/internal/association"
	"github.com/strataops/atrium/internal/authorization"
	"github.com/strataops/atrium/internal/bid"
	"github.com/strataops/atrium/internal/clock"
	"github.com/strataops/atrium/internal/config"
	"github.com/strataops/atrium/internal/dispatch"
	dispatchdomain "github.com/strataops/atrium/internal/dispatch/domain"
	"github.com/strataops/atrium/internal/ledger"
	"github.com/strataops/atrium/internal/observability"
	obsmetrics "github.com/strataops/atrium/internal/observability/metrics"
	obstracing "github.com/strataops/atrium/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	observability.Module,
	authorization.Module,
	activity.Module,
	ledger.Module,
	dispatch.Module,
	association.Module,
	bid.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestContextMiddleware())
	r.Use(RequestLoggingMiddleware(log.Named("http")))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	authzSvc      authorization.Service
	dispatchSvc   dispatchdomain.Service
	activityQuery activitydomain.Query
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	AuthzSvc      authorization.Service
	DispatchSvc   dispatchdomain.Service
	ActivityQuery activitydomain.Query
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		authzSvc:      p.AuthzSvc,
		dispatchSvc:   p.DispatchSvc,
		activityQuery: p.ActivityQuery,
	}
	svc.registerRoutes()
	return svc
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/workflows/dispatch", s.DispatchWorkflow)

	v1.GET("/activity", s.ListActivity)
	v1.GET("/activity/entity", s.GetActivityByEntity)
	v1.GET("/activity/case/:case_id", s.ListActivityByCase)
	v1.GET("/activity/actor", s.ListActivityByActor)
	v1.GET("/activity/export", s.ExportActivity)

	staff := v1.Group("/staff")
	staff.GET("/activity", s.StaffListActivity)
	staff.GET("/activity/entity", s.StaffGetActivityByEntity)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
