package cmd

import (
	"go.uber.org/fx"

	"github.com/webitel/chat-delivery-service/config"
	httpsrv "github.com/webitel/chat-delivery-service/infra/server/http"
	"github.com/webitel/chat-delivery-service/internal/adapter/storage/badgerstore"
	"github.com/webitel/chat-delivery-service/internal/domain/hub"
	amqphandler "github.com/webitel/chat-delivery-service/internal/handler/amqp"
	lphandler "github.com/webitel/chat-delivery-service/internal/handler/lp"
	wshandler "github.com/webitel/chat-delivery-service/internal/handler/ws"
	"github.com/webitel/chat-delivery-service/internal/service"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		fx.Invoke(ProvideTracing),
		badgerstore.Module,
		hub.Module,
		service.Module,
		wshandler.Module,
		lphandler.Module,
		httpsrv.Module,
		amqphandler.Module,
	)
}
