package api

import (
	"log/slog"
	"net/http"

	"crime_service/internal/core"
	"crime_service/internal/infrastructure/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "crime-service"

type RouterOptions struct {
	Production bool
	// ChunkSize is the default chunk length of the streaming points route.
	ChunkSize int
	RateLimit float64
	RateBurst int
	Tracing   bool
	Logger    *slog.Logger
	// Metrics and Gatherer are optional; /metrics is served only when
	// Gatherer is set.
	Metrics  *telemetry.HTTPMetrics
	Gatherer prometheus.Gatherer
}

func NewRouter(service *core.CrimeService, opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Tracing {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(RequestID(), RequestLogger(opts.Logger))
	if opts.Metrics != nil {
		router.Use(Metrics(opts.Metrics))
	}
	router.Use(
		RateLimit(opts.RateLimit, opts.RateBurst, opts.Metrics),
		ErrorHandler(opts.Production),
	)

	h := NewHandler(service, opts.ChunkSize)

	router.GET("/health", h.Health)
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	area := router.Group("/api/area")
	{
		area.GET("", h.Overview)
		area.GET("/locations", h.Locations)
		area.GET("/:id", h.Overview)
		area.GET("/:id/shared", h.SharedDates)
		area.GET("/:id/bounds", h.Bounds)

		area.GET("/:id/getDataByMonth", h.DataByMonth)
		area.GET("/:id/getDataByMonth/:year", h.DataByMonth)

		area.GET("/:id/getCrimeDataByMonth", h.CrimeDataByMonth)
		area.GET("/:id/getCrimeDataByMonth/:month", h.CrimeDataByMonth)

		area.GET("/:id/getCrimeDataByCrime", h.CrimeDataByCrime)
		area.GET("/:id/getCrimeDataByCrime/:month", h.CrimeDataByCrime)
		area.GET("/:id/getCrimeDataByCrime/:month/:crimeType", h.CrimeDataByCrime)
		area.GET("/:id/getCrimeDataByCrime/:month/:crimeType/stream", h.StreamCrimeDataByCrime)
	}

	return router
}

// WithCORS allows GET requests from the trusted origins. With no origins
// configured every origin is allowed.
func WithCORS(h http.Handler, origins []string, debug bool) http.Handler {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Origin", RequestIDHeader},
		ExposedHeaders: []string{"Content-Length", "Content-Type", RequestIDHeader},
		MaxAge:         86400,
		Debug:          debug,
	}
	if len(origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return cors.New(opts).Handler(h)
}
