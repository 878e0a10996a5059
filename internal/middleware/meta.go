package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
	elapsedKey      = "processing_time_ms"
)

// ResponseMeta attaches a metadata map to each request so handlers can report cache hits
// and timing next to the payload.
func ResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Set("meta_started_at", time.Now())
		c.Next()
	}
}

// SetCacheHit records whether the payload came from the cache.
func SetCacheHit(c *gin.Context, hit bool) {
	meta(c)[cacheHitKey] = hit
}

// Meta returns the request metadata with the elapsed time filled in. It is never nil.
func Meta(c *gin.Context) map[string]interface{} {
	m := meta(c)
	if started, ok := c.Get("meta_started_at"); ok {
		if at, ok := started.(time.Time); ok {
			m[elapsedKey] = time.Since(at).Milliseconds()
		}
	}
	return m
}

func meta(c *gin.Context) map[string]interface{} {
	if value, ok := c.Get(responseMetaKey); ok {
		if typed, ok := value.(map[string]interface{}); ok {
			return typed
		}
	}
	m := map[string]interface{}{}
	c.Set(responseMetaKey, m)
	return m
}
