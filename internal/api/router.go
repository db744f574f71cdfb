package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	templateHandler *TemplateHandler,
	channelHandler *ChannelHandler,
	preferenceHandler *PreferenceHandler,
	notificationHandler *NotificationHandler,
	deliveryHandler *DeliveryHandler,
	batchHandler *BatchHandler,
	db *pgxpool.Pool,
	rdb *redis.Client,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(MetricsMiddleware())
	r.Use(RequestLogMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unreachable"})
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Redis is a cache; degraded, not down.
			c.JSON(http.StatusOK, gin.H{"status": "degraded", "cache": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/templates", templateHandler.Create)
	r.GET("/templates", templateHandler.List)
	r.GET("/templates/:id", templateHandler.Get)

	r.POST("/users/:user_id/channels", channelHandler.Add)
	r.GET("/users/:user_id/channels", channelHandler.List)
	r.POST("/channels/:id/verify", channelHandler.Verify)
	r.DELETE("/channels/:id", channelHandler.Deactivate)

	r.GET("/users/:user_id/preferences", preferenceHandler.Get)
	r.PUT("/users/:user_id/preferences", preferenceHandler.Update)

	r.POST("/notifications", notificationHandler.Send)
	r.GET("/users/:user_id/notifications", notificationHandler.List)
	r.GET("/notifications/:id", notificationHandler.Get)
	r.PUT("/notifications/:id/read", notificationHandler.MarkRead)
	r.DELETE("/notifications/:id", notificationHandler.Delete)
	r.GET("/notifications/:id/attempts", notificationHandler.Attempts)
	r.GET("/notifications/:id/delivery-stats", notificationHandler.Stats)

	r.GET("/delivery/pending", deliveryHandler.Pending)
	r.POST("/delivery/:id/claim", deliveryHandler.Claim)
	r.POST("/delivery/:id/success", deliveryHandler.MarkDelivered)
	r.POST("/delivery/:id/failure", deliveryHandler.MarkFailed)

	r.POST("/batches", batchHandler.Create)
	r.GET("/batches/:id", batchHandler.Get)
	r.POST("/batches/:id/schedule", batchHandler.Schedule)
	r.POST("/batches/:id/start", batchHandler.Start)
	r.POST("/batches/:id/complete", batchHandler.Complete)
	r.POST("/batches/:id/cancel", batchHandler.Cancel)
	r.GET("/batches/:id/stats", batchHandler.Stats)

	return &Router{Engine: r}
}

func (r *Router) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
