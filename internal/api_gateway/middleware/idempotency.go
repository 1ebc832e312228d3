package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	// IdempotencyKeyHeader carries the client's retry key on mutating requests
	IdempotencyKeyHeader = "Idempotency-Key"

	// IdempotencyKeyKey is the key used to store the retry key in the context
	IdempotencyKeyKey = "idempotency_key"

	// ReplayedHeader marks a response served from the idempotency store
	ReplayedHeader = "Idempotent-Replayed"

	// ActorIDHeader identifies the authenticated pawner or investor. It is
	// set by the upstream auth proxy.
	ActorIDHeader = "X-Actor-ID"

	// How long a request may hold the in-progress lock.
	provisionalLockTTL = 60 * time.Second
	storeTimeout       = 2 * time.Second
	maxKeyLength       = 128
)

type idempotencyEntry struct {
	InProgress  bool      `json:"in_progress"`
	Code        int       `json:"code"`
	ContentType string    `json:"content_type,omitempty"`
	Body        []byte    `json:"body,omitempty"`
	BodySHA256  string    `json:"body_sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

// bodyRecorder tees the response body so it can be stored for replay.
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) WriteString(s string) (int, error) {
	r.buf.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a mutating request retried with
// the same Idempotency-Key. A key reused with a different body, or while the
// first request is still running, is a 409. Requests without a key pass
// through. Server errors are not stored, so the client may retry them.
func Idempotency(logger *slog.Logger, rdb redis.Cmdable, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxKeyLength {
			abortWithError(c, http.StatusBadRequest, "BAD_REQUEST", "Idempotency-Key is too long")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				abortWithError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body is too large")
				return
			}
			abortWithError(c, http.StatusBadRequest, "BAD_REQUEST", "Failed to read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		bodyHash := hex.EncodeToString(sum[:])

		storeKey := "idemp:" + strings.ToLower(c.Request.Method) + ":" + c.FullPath() + ":" +
			c.GetHeader(ActorIDHeader) + ":" + key
		requestLogger := logger.With("idempotency_key", key, "correlation_id", GetCorrelationID(c))

		ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
		defer cancel()

		provisional, _ := json.Marshal(idempotencyEntry{InProgress: true, BodySHA256: bodyHash, CreatedAt: time.Now().UTC()})
		fresh, err := rdb.SetNX(ctx, storeKey, provisional, provisionalLockTTL).Result()
		if err != nil {
			requestLogger.Error("Failed to acquire idempotency lock", "error", err)
			abortWithError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Idempotency store unavailable")
			return
		}

		if !fresh {
			var cur idempotencyEntry
			raw, err := rdb.Get(ctx, storeKey).Bytes()
			if err == nil {
				err = json.Unmarshal(raw, &cur)
			}
			if err != nil {
				requestLogger.Warn("Failed to load idempotency entry", "error", err)
			}
			switch {
			case cur.BodySHA256 != "" && cur.BodySHA256 != bodyHash:
				abortWithError(c, http.StatusConflict, "IDEMPOTENCY_KEY_REUSED", "Idempotency-Key reused with a different request body")
			case !cur.InProgress && cur.Code != 0:
				requestLogger.Info("Replaying stored response", "status", cur.Code)
				c.Header(ReplayedHeader, "true")
				c.Data(cur.Code, cur.ContentType, cur.Body)
				c.Abort()
			default:
				abortWithError(c, http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this Idempotency-Key is already in progress")
			}
			return
		}

		c.Set(IdempotencyKeyKey, key)
		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()

		saveCtx, saveCancel := context.WithTimeout(context.Background(), storeTimeout)
		defer saveCancel()

		status := rec.Status()
		if status >= http.StatusInternalServerError {
			if err := rdb.Del(saveCtx, storeKey).Err(); err != nil {
				requestLogger.Warn("Failed to release idempotency lock", "error", err)
			}
			return
		}

		final, _ := json.Marshal(idempotencyEntry{
			Code:        status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.buf.Bytes(),
			BodySHA256:  bodyHash,
			CreatedAt:   time.Now().UTC(),
		})
		if err := rdb.Set(saveCtx, storeKey, final, ttl).Err(); err != nil {
			requestLogger.Warn("Failed to store idempotent response", "error", err)
		}
	}
}

// GetIdempotencyKey returns the request's Idempotency-Key once the middleware accepted it
func GetIdempotencyKey(c *gin.Context) string {
	return c.GetString(IdempotencyKeyKey)
}

// BodyLimit caps how many bytes a handler may read from the request body.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, code, message string) {
	response := gin.H{"error": gin.H{"code": code, "message": message}}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(status, response)
}
