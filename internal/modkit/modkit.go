package modkit

import (
	"rangeload/internal/platform/logger"
	phttp "rangeload/internal/platform/net/http"
)

// Module is anything that can mount HTTP routes for the api binary
type Module interface {
	MountRoutes(r phttp.Router)
	Name() string
}

// Mount mounts every module on r in order and logs each one
func Mount(r phttp.Router, mods ...Module) {
	for _, m := range mods {
		m.MountRoutes(r)
		logger.Get().Info().Str("module", m.Name()).Msg("routes mounted")
	}
}
