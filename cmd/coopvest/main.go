package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/coopvest/coopvest/internal/config"
	"github.com/coopvest/coopvest/internal/envelope"
	"github.com/coopvest/coopvest/internal/infra/database"
	"github.com/coopvest/coopvest/internal/infra/repository"
	"github.com/coopvest/coopvest/internal/present/rest"
	authmw "github.com/coopvest/coopvest/internal/present/rest/middleware"
	"github.com/coopvest/coopvest/internal/realtime"
	"github.com/coopvest/coopvest/internal/service"
	"github.com/coopvest/coopvest/internal/usecase"
)

func main() {
	configPath := flag.String("config", "/etc/coopvest/config.yaml", "path to the config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	dconf := conf.Domain()

	ctx := context.Background()

	if conf.Server.EnableTrace {
		cleanup, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint)
		if err != nil {
			panic("failed to setup tracing: " + err.Error())
		}
		defer cleanup(ctx)
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		panic("failed to connect database")
	}

	err = database.MigratePostgres(db)
	if err != nil {
		panic("failed to migrate database")
	}

	rdb := database.NewRedis(conf.Server.RedisAddr, "", conf.Server.RedisDB)

	var mc *memcache.Client
	if conf.Server.MemcachedAddr != "" {
		mc = database.NewMemcached(conf.Server.MemcachedAddr)
	}

	codec := envelope.NewCodec(dconf.SigningSecret, dconf.ValidityWindow)
	repo := repository.NewLoanQRRepository(db)
	renderer := service.NewQRImageService()
	signal := service.NewSignalService(rdb)
	authService := service.NewAuthService(dconf.TokenSecret, mc)

	guarantor := usecase.NewGuarantorUsecase(codec, repo, signal, renderer, dconf.GuarantorsRequired)

	hub := realtime.NewHub(authService, guarantor, dconf.ProbeInterval)
	if err := hub.Start(); err != nil {
		panic("failed to start realtime hub: " + err.Error())
	}
	defer hub.Stop()

	go signal.Relay(ctx, hub.Dispatcher())

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("coopvest"))
	}

	auth := authmw.NewAuthMiddleware(authService)
	handler := rest.NewHandler(dconf, guarantor, hub)
	handler.RegisterRoutes(e, auth.IdentifyIdentity)

	slog.Info("coopvest starting", slog.String("listen", dconf.Listen), slog.String("module", "main"))
	e.Logger.Fatal(e.Start(dconf.Listen))
}

func setupTraceProvider(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
