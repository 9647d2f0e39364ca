package modules

import (
	"github.com/iota-uz/territory/modules/territory"
	"github.com/iota-uz/territory/pkg/application"
)

var BuiltInModules = []application.Module{
	territory.NewModule(),
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
