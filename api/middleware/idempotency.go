package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/gearledger-backend/api/responses"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/gearledger-backend/pkg/redis"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	replayedHeader         = "Idempotent-Replayed"
	originalRequestHeader  = "X-Original-Request-Id"
	maxIdempotencyKeyLen   = 255
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

// inFlightTTL bounds a reservation; a crashed request frees its key once it
// lapses.
const inFlightTTL = 2 * time.Minute

// IdempotencyStore is the Redis surface the middleware needs. Set replaces
// the in-flight reservation with the finished response.
type IdempotencyStore = pkgredis.IdempotencyStore

type idempotencyRoute struct {
	method  string
	pattern string
	ttl     time.Duration
}

// Patterns use chi syntax; a {param} segment matches any single segment.
var idempotencyRoutes = []idempotencyRoute{
	{http.MethodPost, "/api/v1/connect/onboarding", defaultIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/payouts/{payoutId}/reopen", defaultIdempotencyTTL},
	// money movement keeps its key for a week
	{http.MethodPost, "/api/v1/checkout", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/orders/{orderId}/cancel", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/payouts", criticalIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/payees/{payeeId}/payouts", criticalIdempotencyTTL},
	{http.MethodPost, "/api/admin/v1/payouts/{payoutId}/retry", criticalIdempotencyTTL},
}

type recordState string

const (
	stateInFlight  recordState = "in_flight"
	stateCompleted recordState = "completed"
)

type idempotencyRecord struct {
	State       recordState `json:"state"`
	RequestHash string      `json:"request_hash"`
	RequestID   string      `json:"request_id,omitempty"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Body        string      `json:"body,omitempty"`
}

// Idempotency makes the listed write routes safe to retry. The first
// non-5xx response under a key is replayed for later requests with the same
// body; a different body under the same key is rejected, as is a duplicate
// that arrives while the first is still running.
func Idempotency(store IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, requestPath(r))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			idemKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if idemKey == "" || len(idemKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required").
					WithDetails(map[string]any{"field": idempotencyHeader, "max_length": maxIdempotencyKeyLen}))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(scopeFor(r), idemKey)
			hash := requestHash(r, body)

			reserved, err := reserve(ctx, store, key, idempotencyRecord{
				State:       stateInFlight,
				RequestHash: hash,
				RequestID:   RequestIDFromContext(ctx),
			})
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayOrReject(ctx, store, logg, w, key, hash)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, capture: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			// server-side failures stay retryable under the same key
			if rec.Status() >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil {
					logIdempotencyError(ctx, logg, "idempotency.release_failed", err)
				}
				return
			}
			done, err := json.Marshal(idempotencyRecord{
				State:       stateCompleted,
				RequestHash: hash,
				RequestID:   RequestIDFromContext(ctx),
				Status:      rec.Status(),
				ContentType: rec.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(rec.capture.Bytes()),
			})
			if err == nil {
				err = store.Set(ctx, key, string(done), ttl)
			}
			if err != nil {
				logIdempotencyError(ctx, logg, "idempotency.persist_failed", err)
			}
		})
	}
}

func reserve(ctx context.Context, store IdempotencyStore, key string, record idempotencyRecord) (bool, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(payload), inFlightTTL)
}

func replayOrReject(ctx context.Context, store IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, hash string) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the reservation lapsed between SetNX and Get; the caller may retry
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}

	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.State != stateCompleted:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
	default:
		writeStoredResponse(w, record)
	}
}

func writeStoredResponse(w http.ResponseWriter, record idempotencyRecord) {
	body, err := base64.StdEncoding.DecodeString(record.Body)
	if err != nil {
		body = nil
	}
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	if record.RequestID != "" {
		w.Header().Set(originalRequestHeader, record.RequestID)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(body)
}

// scopeFor keys records per caller so two users cannot collide on a key.
func scopeFor(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, requestPath(r)}, "|")
}

func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method + " " + requestPath(r) + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// requestPath returns the concrete request path. Group middleware runs before
// chi has matched the leaf route, so the route context only holds the mount
// prefix at this point.
func requestPath(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	path := r.URL.Path
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func routeTTL(method, path string) (time.Duration, bool) {
	if path == "" {
		return 0, false
	}
	for _, route := range idempotencyRoutes {
		if route.method == method && matchPattern(route.pattern, path) {
			return route.ttl, true
		}
	}
	return 0, false
}

func matchPattern(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, segment := range want {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if segment != got[i] {
			return false
		}
	}
	return true
}

func logIdempotencyError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg != nil {
		logg.Error(ctx, msg, err)
	}
}
