package association

import (
	"fmt"

	"github.com/strataops/atrium/internal/association/repository"
	"github.com/strataops/atrium/internal/association/service"
	"github.com/strataops/atrium/internal/authorization"
	"github.com/strataops/atrium/internal/dispatch"
	"github.com/strataops/atrium/internal/dispatch/domain"
	"go.uber.org/fx"
)

// RegisterWorkflows binds this module's handlers into the dispatch table.
func RegisterWorkflows(registry *dispatch.Registry, svc *service.Service) error {
	if err := registry.Register(domain.ActionCreateAssociation, domain.Spec{
		Object:         authorization.ObjectAssociation,
		Verb:           authorization.ActionAssociationCreate,
		Handler:        svc.Create,
		Entity:         "ASSOCIATION",
		RecordedAction: "CREATE",
		EntityIDKey:    "association_id",
		Summary: func(req domain.Request, result *domain.Result) string {
			return fmt.Sprintf("Association %q was created", result.Data["name"])
		},
	}); err != nil {
		return err
	}
	return registry.Register(domain.ActionUpdateAssociation, domain.Spec{
		Object:         authorization.ObjectAssociation,
		Verb:           authorization.ActionAssociationUpdate,
		Handler:        svc.Update,
		Entity:         "ASSOCIATION",
		RecordedAction: "UPDATE",
		EntityIDKey:    "association_id",
		Summary: func(req domain.Request, result *domain.Result) string {
			return fmt.Sprintf("Association %q was updated", result.Data["name"])
		},
	})
}

var Module = fx.Module("association.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(RegisterWorkflows),
)
