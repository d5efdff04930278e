package bootstrap

import (
	"context"
	"net/http"
	"strings"

	"github.com/krobus00/futures-signal-executor/internal/config"
	"github.com/krobus00/futures-signal-executor/internal/entity"
	httpHandler "github.com/krobus00/futures-signal-executor/internal/handler/webhook/http"
	"github.com/krobus00/futures-signal-executor/internal/infrastructure"
	signalService "github.com/krobus00/futures-signal-executor/internal/service/signal"
	"github.com/krobus00/futures-signal-executor/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartWebhookGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := newPipeline(ctx)
	util.ContinueOrFatal(err)

	shutdownOps := p.shutdownOps()

	var queue httpHandler.SignalQueue
	if strings.TrimSpace(config.Env.NatsJetstream.URL) != "" {
		nc, js, err := infrastructure.NewJetstream(config.Env.NatsJetstream)
		util.ContinueOrFatal(err)

		signalSvc := signalService.NewSignalService(p.executor, js, config.Env.NatsJetstream)

		publishers := make([]entity.Publisher, 0)
		publishers = append(publishers, signalSvc)
		for _, v := range publishers {
			err = v.JetstreamEventInit(ctx)
			util.ContinueOrFatal(err)
		}

		queue = signalSvc
		shutdownOps["nats connection"] = func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		}
	} else {
		logrus.Warn("nats_jetstream.url is not configured, /webhook/async is disabled")
	}

	var executions httpHandler.ExecutionLister
	if p.executionRepo != nil {
		executions = p.executionRepo
	}

	webhookHandler := httpHandler.NewWebhookHTTPHandler(p.executor, queue, executions)
	httpMux := http.NewServeMux()
	infrastructure.RegisterOperationalRoutes(httpMux)
	webhookHandler.Register(httpMux)

	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.HTTPServerConfig{
		Addr:            infrastructure.ResolveHTTPAddr("webhook_gateway"),
		ShutdownTimeout: config.Env.GracefulShutdownTimeout,
	}, httpMux)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()

	shutdownOps["http"] = func(ctx context.Context) error {
		cancel()
		return httpServer.Shutdown(ctx)
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, shutdownOps)

	<-wait
}
