package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/florrin/calagenda/internal/service"
)

type versionSource interface {
	Version() uint64
}

// CacheConfig tunes the read-path response cache.
type CacheConfig struct {
	TTL time.Duration
}

type cachedWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *cachedWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

// ResponseCache serves GET responses from redis. Keys embed the engine
// snapshot version, so a reconciliation pass invalidates every cached
// response at once and stale state is never served.
func ResponseCache(client *redis.Client, state versionSource, metrics *service.MetricsService, logger *zap.Logger, cfg CacheConfig) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}

	return func(c *gin.Context) {
		if client == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := fmt.Sprintf("resp:%d:%s?%s", state.Version(), c.Request.URL.Path, c.Request.URL.RawQuery)
		ctx := c.Request.Context()

		if cached, err := client.Get(ctx, key).Bytes(); err == nil {
			if metrics != nil {
				metrics.ObserveCache(true)
			}
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json", cached)
			c.Abort()
			return
		}
		if metrics != nil {
			metrics.ObserveCache(false)
		}

		writer := &cachedWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Header("X-Cache", "MISS")
		c.Next()

		if c.Writer.Status() != http.StatusOK || writer.body.Len() == 0 {
			return
		}
		if err := client.Set(ctx, key, writer.body.Bytes(), cfg.TTL).Err(); err != nil {
			logger.Debug("response cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
}
