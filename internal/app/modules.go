package app

import (
	"github.com/vk/moveboot/internal/registry"
	"github.com/vk/moveboot/modules/cargo"
	"github.com/vk/moveboot/modules/m1source"
	"github.com/vk/moveboot/modules/movement"
)

// coreModules is the definitive list of all modules that are compiled into
// the moveboot binary.
var coreModules = []registry.Module{
	&movement.Module{},
	&cargo.Module{},
	&m1source.Module{},
}
