package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodlink/blood-donor-backend/internal/config"
	"github.com/bloodlink/blood-donor-backend/internal/utils"
)

const secret = "test-secret"

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func serve(e *echo.Echo, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"id":    c.Get(CtxUserID),
			"name":  c.Get(CtxUserName),
			"email": c.Get(CtxUserEmail),
		})
	}, JWTAuth(secret))

	good, err := utils.NewAccessToken(secret, utils.Identity{ID: 7, Name: "Rahim", Email: "r@example.com"}, time.Hour)
	require.NoError(t, err)
	expired, err := utils.NewAccessToken(secret, utils.Identity{ID: 7}, -time.Minute)
	require.NoError(t, err)

	rec := serve(e, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + good.Token})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"name":"Rahim","email":"r@example.com"}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "No token provided")

	rec = serve(e, http.MethodGet, "/me", map[string]string{"Authorization": "Token " + good.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + expired.Token})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(e, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTokenBucket_BlocksAfterCapacity(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: time.Hour, KeyStrategy: "ip", Prefix: "rl-test",
	}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, rdb))
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/ping", nil).Code)
	rec := serve(e, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(e, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Too many requests")
}

func TestTokenBucket_FailsOpenWithoutRedis(t *testing.T) {
	e := echo.New()
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil))
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/ping", nil).Code)
	}
}

func TestBuildRateKey_UsesAuthenticatedUser(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), httptest.NewRecorder())
	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}
	assert.Equal(t, "rl:user:anon", buildRateKey(cfg, c))
	c.Set(CtxUserID, uint64(42))
	assert.Equal(t, "rl:user:42", buildRateKey(cfg, c))
}

func TestRedisCache(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache-test", MaxBodyBytes: 1 << 10,
	}
	calls := 0
	e := echo.New()
	e.Use(NewRedisCache(cfg, rdb))
	e.GET("/api/bloodtypes", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, []string{"A+", "O-"})
	})
	e.GET("/broken", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "boom"})
	})

	first := serve(e, http.MethodGet, "/api/bloodtypes", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(e, http.MethodGet, "/api/bloodtypes", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, first.Header().Get(echo.HeaderContentType), second.Header().Get(echo.HeaderContentType))
	assert.Equal(t, 1, calls)

	serve(e, http.MethodGet, "/broken", nil)
	serve(e, http.MethodGet, "/broken", nil)
	assert.Equal(t, 3, calls, "non-200 responses are not cached")
}

func TestPurgeCache_NextReadMisses(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 10,
	}
	e := echo.New()
	e.GET("/api/requests/public", func(c echo.Context) error {
		return c.JSON(http.StatusOK, []int{1})
	}, NewRedisCache(cfg, rdb))
	require.NoError(t, rdb.Set(context.Background(), "other:key", "keep", 0).Err())

	serve(e, http.MethodGet, "/api/requests/public", nil)
	assert.Equal(t, "HIT", serve(e, http.MethodGet, "/api/requests/public", nil).Header().Get("X-Cache"))

	require.NoError(t, PurgeCache(context.Background(), cfg, rdb))
	assert.Equal(t, "MISS", serve(e, http.MethodGet, "/api/requests/public", nil).Header().Get("X-Cache"))
	assert.Equal(t, "keep", rdb.Get(context.Background(), "other:key").Val())

	assert.NoError(t, PurgeCache(context.Background(), cfg, nil))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`[1]`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `[1]`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}
