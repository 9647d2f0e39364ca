package territory

import (
	"embed"

	"github.com/iota-uz/territory/modules/territory/infrastructure/persistence"
	"github.com/iota-uz/territory/modules/territory/presentation/controllers"
	"github.com/iota-uz/territory/modules/territory/services"
	"github.com/iota-uz/territory/pkg/application"
)

//go:embed infrastructure/persistence/schema/territory-schema.sql
var migrationFiles embed.FS

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	app.Migrations().RegisterSchema(&migrationFiles)

	territoryRepo := persistence.NewTerritoryRepository()
	ruleRepo := persistence.NewRuleRepository()
	assignmentRepo := persistence.NewAssignmentRepository()
	resolver := persistence.NewAssignableResolver()

	app.RegisterServices(
		services.NewTerritoryService(territoryRepo, app.EventPublisher()),
		services.NewRuleService(ruleRepo, territoryRepo),
		services.NewHierarchyService(territoryRepo),
		services.NewAssignmentService(
			assignmentRepo,
			territoryRepo,
			ruleRepo,
			resolver,
			app.EventPublisher(),
			app.Logger(),
		),
	)

	app.RegisterControllers(
		controllers.NewTerritoryAPIController(app),
		controllers.NewAssignmentAPIController(app),
	)

	return nil
}

func (m *Module) Name() string {
	return "territory"
}
