package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"wedding-site/internal/config"
	"wedding-site/internal/database"
	"wedding-site/internal/handler"
	"wedding-site/internal/ratelimit"
	"wedding-site/internal/rsvp"
	"wedding-site/internal/upload"
	"wedding-site/internal/whatsapp"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the RSVP gateway and upload broker",
		Long: `Run the HTTP server.

Routes:
  GET|POST /api/rsvp            list or submit RSVP responses
  GET      /api/rsvp/stats      response summary
  GET      /api/rsvp/export.csv responses as CSV
  POST     /upload-media        signed upload target for a guest
  GET      /metrics, /healthz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *RootOptions) error {
	cfg, log := opts.Config, opts.Log
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	ctx, stop := signalContext(commandContext(cmd))
	defer stop()

	if cfg.OTELEndpoint != "" {
		shutdown, err := initOTEL(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(c)
		}()
	}

	store, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	if err := store.InstallChangeTriggers(ctx); err != nil {
		return err
	}

	media, err := upload.NewStorage(upload.StorageConfig{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		UseSSL:    cfg.StorageUseSSL,
		Bucket:    cfg.StorageBucket,
		PublicURL: cfg.PublicMediaBase(),
	})
	if err != nil {
		return err
	}
	if err := media.EnsureBucket(ctx); err != nil {
		return err
	}
	broker := upload.NewBroker(
		upload.NewJWTAuthenticator(cfg.AuthJWTSecret), media, media.Bucket(),
		upload.WithURLTTL(cfg.UploadURLTTL),
		upload.WithBrokerLogger(log),
	)

	svcOpts := []rsvp.Option{rsvp.WithLogger(log.With().Str("component", "RSVPService").Logger())}
	var wa *whatsapp.Service
	if cfg.WhatsAppEnabled {
		wa, err = whatsapp.NewService(ctx, whatsappConfig(cfg), log)
		if err != nil {
			return err
		}
		if !wa.IsLoggedIn() {
			return errors.New("WhatsApp is not paired, run `wedding whatsapp login` first")
		}
		if err := wa.Connect(ctx, cmd.OutOrStdout()); err != nil {
			return err
		}
		defer wa.Disconnect()
		svcOpts = append(svcOpts, rsvp.WithNotifier(wa))
	}
	service := rsvp.NewService(store, svcOpts...)

	if wa != nil {
		replies := handler.NewReplyHandler(service, wa, &handler.Config{
			WeddingDate:     cfg.WeddingDate,
			WeddingLocation: cfg.WeddingLocation,
			BrideName:       cfg.BrideName,
			GroomName:       cfg.GroomName,
		}, wa.IsHost, log)
		wa.SetMessageHandler(replies.HandleMessage)
	}

	var limiter ratelimit.Allower
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable, submissions pass unlimited until it answers")
		}
		limiter = ratelimit.New(rdb, cfg.RSVPRateLimit, cfg.RSVPRateWindow)
	}

	mux := NewMux(
		handler.NewRSVPHandler(service, log),
		handler.NewUploadHandler(broker, cfg.UploadOrigin, log),
		limiter, cfg.TrustedProxies, log,
	)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(mux, "wedding"),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// NewMux mounts the gateway routes. A nil limiter disables rate limiting.
func NewMux(rsvpHandler *handler.RSVPHandler, uploadHandler http.Handler, limiter ratelimit.Allower, trustedProxies []string, log zerolog.Logger) *http.ServeMux {
	var submissions http.Handler = rsvpHandler
	if limiter != nil {
		submissions = ratelimit.Middleware(limiter, trustedProxies, log)(rsvpHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/rsvp", submissions)
	mux.HandleFunc("GET /api/rsvp/stats", rsvpHandler.Stats)
	mux.HandleFunc("GET /api/rsvp/export.csv", rsvpHandler.Export)
	mux.Handle("/upload-media", uploadHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func initOTEL(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTELEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.OTELServiceName),
		attribute.String("wedding.bride", cfg.BrideName),
		attribute.String("wedding.groom", cfg.GroomName),
	))
	tp := trace.NewTracerProvider(trace.WithBatcher(exp), trace.WithResource(res))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func whatsappConfig(cfg *config.Config) *whatsapp.Config {
	return &whatsapp.Config{
		DataDir:     cfg.DataDir,
		CountryCode: cfg.WhatsAppCountryCode,
		HostPhones:  cfg.WhatsAppHostPhones,
		BrideName:   cfg.BrideName,
		GroomName:   cfg.GroomName,
	}
}
