package bootstrap

import (
	"context"
	"net/http"
	"strings"

	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	assethttp "github.com/ichie-benjamin/market-pulse/internal/handler/asset/http"
	"github.com/ichie-benjamin/market-pulse/internal/handler/stream"
	"github.com/ichie-benjamin/market-pulse/internal/infrastructure"
	"github.com/ichie-benjamin/market-pulse/internal/repository"
	"github.com/ichie-benjamin/market-pulse/internal/service/distribution"
	"github.com/ichie-benjamin/market-pulse/internal/service/ingestion"
	"github.com/ichie-benjamin/market-pulse/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartServer(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newAssetStore(ctx)

	hub := distribution.NewHub(store)
	util.ContinueOrFatal(hub.Run(ctx))

	manager, err := ingestion.NewManager(config.Env, store, hub)
	util.ContinueOrFatal(err)
	manager.Start(ctx)

	mux := http.NewServeMux()
	assethttp.NewAssetHTTPHandler(store, manager, hub.Stats).Register(mux)
	stream.NewStreamHandler(hub, config.Env.Stream).Register(mux)

	server := infrastructure.NewHTTPServer(mux)
	go func() {
		util.ContinueOrFatal(server.Start())
	}()

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, []operation{
		{"http server", func(ctx context.Context) error {
			return server.Shutdown(ctx)
		}},
		{"distribution hub", func(ctx context.Context) error {
			hub.Close()
			return nil
		}},
		{"ingestion manager", func(ctx context.Context) error {
			cancel()
			manager.Stop()
			return nil
		}},
		{"asset store", func(ctx context.Context) error {
			return store.Close()
		}},
	})

	<-wait
}

func newAssetStore(ctx context.Context) entity.AssetStore {
	cacheCfg := config.Env.Cache

	if strings.EqualFold(cacheCfg.Driver, "memory") {
		logrus.Info("using in-memory asset store")
		return repository.NewMemoryAssetStore(cacheCfg.TTL)
	}

	client, err := infrastructure.NewRedisClient(ctx, cacheCfg)
	util.ContinueOrFatal(err)

	return repository.NewRedisAssetStore(client, cacheCfg)
}
