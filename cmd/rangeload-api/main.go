package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"rangeload/internal/modkit"
	"rangeload/internal/modkit/swaggerkit"
	"rangeload/internal/platform/config"
	"rangeload/internal/platform/logger"
	phttp "rangeload/internal/platform/net/http"
	"rangeload/internal/platform/net/middleware"
	ingestmod "rangeload/internal/services/ingest/module"

	"github.com/go-chi/chi/v5"
)

func main() {
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")
	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := ingestmod.Boot(ctx, root, "rangeload-api")
	if err != nil {
		l.Panic().Err(err).Msg("ingest boot failed")
	}
	defer rt.Close(context.Background())

	// http server (reads API_PORT)
	srv := phttp.NewServer(root, func(m *chi.Mux) {
		m.Use(middleware.Defaults(middleware.Options{
			Slow: apiCfg.MayDuration("SLOW", 0),
			CORS: middleware.CORSOptions{
				AllowedOrigins:   apiCfg.MayCSV("CORS_ORIGINS", nil),
				AllowCredentials: apiCfg.MayBool("CORS_CREDENTIALS", false),
				MaxAge:           apiCfg.MayInt("CORS_MAX_AGE", 300),
			},
		})...)
	})
	swaggerkit.Mount(srv.Router(), apiCfg.MayBool("SWAGGER", false))
	modkit.Mount(srv.Router(), rt.Module)

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
