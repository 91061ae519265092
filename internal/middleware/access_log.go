package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/GoPolymarket/polyclob/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextRequestID = "request_id"
	ContextLogFields = "log_fields"
	HeaderRequestID  = "X-Request-ID"
)

// bodyLogWriter captures the response body while passing it through.
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// AccessLogMiddleware tags each request with an id and writes one log line
// when it completes. Bodies on order routes have key material masked and are
// only emitted at debug level.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header(HeaderRequestID, reqID)
		c.Set(ContextRequestID, reqID)
		c.Set(ContextLogFields, map[string]any{})

		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBody))
		}

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		path := c.Request.URL.Path
		fields := []any{
			"request_id", reqID,
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if extra, ok := c.Get(ContextLogFields); ok {
			for k, v := range extra.(map[string]any) {
				fields = append(fields, k, v)
			}
		}
		log := logger.Get()
		log.Info("request", fields...)

		if log.Enabled(c.Request.Context(), slog.LevelDebug) {
			log.Debug("request body",
				"request_id", reqID,
				"request", redactBody(path, reqBody),
				"response", redactBody(path, blw.body.Bytes()),
			)
		}
	}
}

// AddLogContext attaches a field to the access log line of the current request.
func AddLogContext(c *gin.Context, key string, value any) {
	if val, exists := c.Get(ContextLogFields); exists {
		if fields, ok := val.(map[string]any); ok {
			fields[key] = value
		}
	}
}

func redactBody(path string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !isSensitivePath(path) {
		return string(body)
	}
	redacted, ok := redactJSON(body)
	if !ok {
		return "[redacted]"
	}
	return string(redacted)
}

func isSensitivePath(path string) bool {
	return strings.HasPrefix(path, "/v1/orders")
}

func redactJSON(body []byte) ([]byte, bool) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	return out, true
}

func redactValue(v *any) {
	switch raw := (*v).(type) {
	case map[string]any:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []any:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "apikey",
		"api_key",
		"secret",
		"api_secret",
		"passphrase",
		"api_passphrase",
		"private_key",
		"signature",
		"poly_signature",
		"ops_key":
		return true
	default:
		return false
	}
}
