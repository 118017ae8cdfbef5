package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/n9te9/federation-router/gateway"
	"github.com/n9te9/federation-router/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const gatewayVersion = "v0.1.0"

// requestIDHeader is echoed back to the client and attached to every log
// line emitted for the request, so a client-reported failure can be
// correlated with the gateway's own structured logs.
const requestIDHeader = "X-Request-Id"

// withRequestID stamps every inbound request with a UUIDv4 request ID
// (reusing one supplied by an upstream proxy, if present) and logs the
// method/path/duration once the handler returns.
func withRequestID(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		rl := logger.With("request_id", requestID, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
		rl.Info("handled request", "duration", time.Since(start))
	})
}

func Run() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	settings, err := loadGatewaySetting()
	if err != nil {
		log.Fatalf("failed to load gateway settings: %v", err)
	}

	gw, err := gateway.NewGateway(*settings)
	if err != nil {
		log.Fatalf("failed to build gateway: %v", err)
	}

	gwHandler := http.Handler(gw)
	if settings.Opentelemetry.TracingSetting.Enable {
		gwHandler = otelhttp.NewHandler(http.Handler(gw), settings.ServiceName)
	}
	gwHandler = withRequestID(gwHandler, logger)

	timeoutDuration, err := config.ParseDuration(settings.TimeoutDuration)
	if err != nil {
		log.Fatalf("failed to parse timeout duration: %v", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", settings.Port),
		Handler: gwHandler,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill, syscall.SIGTERM)
	defer cancel()

	shutdown, err := gateway.InitTracer(ctx, settings.ServiceName, gatewayVersion)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}

	go func() {
		log.Printf("starting gateway server on port %d", settings.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway server failed: %v", err)
		}
	}()

	<-ctx.Done()

	timeoutCtx, cancel := context.WithTimeout(context.Background(), timeoutDuration)
	defer cancel()

	log.Println("shutting down gateway server...")
	if err := srv.Shutdown(timeoutCtx); err != nil {
		log.Fatalf("failed to shutdown gateway server: %v", err)
	}

	if err := shutdown(timeoutCtx); err != nil {
		log.Fatalf("failed to shutdown tracer: %v", err)
	}

	log.Println("gateway server stopped")
}

// Validate loads the configured gateway settings and composes the
// supergraph from the listed subgraph SDL files without starting a
// server, printing composition errors to stderr. It exits non-zero on
// any misconfiguration so CI can catch a bad supergraph before deploy.
func Validate() {
	settings, err := loadGatewaySetting()
	if err != nil {
		log.Fatalf("failed to load gateway settings: %v", err)
	}

	if _, err := gateway.NewGateway(*settings); err != nil {
		log.Fatalf("supergraph composition failed: %v", err)
	}

	log.Printf("supergraph composed successfully from %d service(s)", len(settings.Services))
}

func loadGatewaySetting() (*gateway.GatewayOption, error) {
	var settings gateway.GatewayOption
	if err := config.LoadYAML("gateway.yaml", &settings); err != nil {
		return nil, err
	}

	return &settings, nil
}
