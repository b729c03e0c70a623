package dashboard

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/dashboard/service"
	"signal_bot/internal/state"
)

func NewRouter() *mux.Router {
	return mux.NewRouter()
}

func NewHub(cfg *config.Config, st *state.Store, log *zap.Logger) *service.Hub {
	return service.NewHub(st, cfg.Dashboard.PushInterval, log)
}

// RunHTTP поднимает сервер дашборда и пушер хаба.
func RunHTTP(lc fx.Lifecycle, cfg *config.Config, r *mux.Router, hub *service.Hub, log *zap.Logger) {
	service.Routes(r, hub)

	srv := &http.Server{
		Addr:              cfg.Dashboard.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.Dashboard.Addr)
			if err != nil {
				return err
			}
			go hub.Run(ctx)
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					log.Error("[DASH] serve", zap.Error(err))
				}
			}()
			log.Info("[DASH] listening", zap.String("addr", cfg.Dashboard.Addr))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			return srv.Shutdown(stopCtx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("dashboard",
		fx.Provide(NewRouter, NewHub),
		fx.Invoke(RunHTTP),
	)
}
