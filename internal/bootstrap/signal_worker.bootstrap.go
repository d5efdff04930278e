package bootstrap

import (
	"context"
	"net/http"

	"github.com/krobus00/futures-signal-executor/internal/config"
	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/krobus00/futures-signal-executor/internal/infrastructure"
	signalService "github.com/krobus00/futures-signal-executor/internal/service/signal"
	"github.com/krobus00/futures-signal-executor/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartSignalWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := newPipeline(ctx)
	util.ContinueOrFatal(err)

	nc, js, err := infrastructure.NewJetstream(config.Env.NatsJetstream)
	util.ContinueOrFatal(err)

	signalSvc := signalService.NewSignalService(p.executor, js, config.Env.NatsJetstream)

	subscribers := make([]entity.Subscriber, 0)
	subscribers = append(subscribers, signalSvc)
	for _, v := range subscribers {
		err = v.JetstreamEventSubscribe(ctx)
		util.ContinueOrFatal(err)
	}

	// the worker only exposes health endpoints and metrics
	httpMux := http.NewServeMux()
	infrastructure.RegisterOperationalRoutes(httpMux)
	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.HTTPServerConfig{
		Addr:            infrastructure.ResolveHTTPAddr("signal_worker"),
		ShutdownTimeout: config.Env.GracefulShutdownTimeout,
	}, httpMux)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()

	logrus.Info("signal worker started")

	shutdownOps := p.shutdownOps()
	shutdownOps["nats connection"] = func(ctx context.Context) error {
		cancel()
		return infrastructure.CloseJetstream(nc)
	}
	shutdownOps["http"] = func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, shutdownOps)

	<-wait
}
