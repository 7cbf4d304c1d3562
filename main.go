package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard-api/api"
	"taskboard-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	var store api.Store
	if os.Getenv("LOCAL_STORE_MODE") == "memory" {
		store = storage.NewMemory(logger)
		log.Warn("running against the in-memory store; data will not survive restarts")
	} else {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		tables := storage.Tables{
			Tasks:         os.Getenv("TASKS_TABLE"),
			Teams:         os.Getenv("TEAMS_TABLE"),
			Users:         os.Getenv("USERS_TABLE"),
			Organizations: os.Getenv("ORGANIZATIONS_TABLE"),
		}
		eventQueue := os.Getenv("EVENT_QUEUE")
		if connStr == "" || tables.Tasks == "" || tables.Teams == "" || tables.Users == "" || tables.Organizations == "" || eventQueue == "" {
			log.Fatal("missing storage config")
		}
		s, err := storage.New(connStr, tables, eventQueue, logger)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = s
	}

	var deduper api.Deduper
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn != "" {
		rc := redis.NewClient(parseRedisOptions(redisConn))
		ttl := 24 * time.Hour
		if v := os.Getenv("DEDUPER_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid DEDUPER_TTL: %v", err)
			}
			ttl = d
		}
		deduper = api.NewRedisDeduper(rc, ttl)

		cacheTTL := 5 * time.Minute
		if v := os.Getenv("BOARD_CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid BOARD_CACHE_TTL: %v", err)
			}
			cacheTTL = d
		}
		if base, ok := store.(*storage.Storage); ok {
			store = storage.NewCache(base, rc, cacheTTL)
		}
	}

	var auth *api.Auth
	if os.Getenv("AUTH_TEST_MODE") == "1" {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			log.Fatal("TEST_JWT_SECRET must be set when AUTH_TEST_MODE=1")
		}
		auth = api.NewTestAuth([]byte(secret))
	} else {
		jwtAudience := os.Getenv("JWT_AUDIENCE")
		domainName := os.Getenv("AUTH_DOMAIN")
		if jwtAudience == "" || domainName == "" {
			log.Fatal("missing auth config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domainName)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domainName+"/")
	}

	var webhooks *api.UserWebhook
	if webhookSecret := os.Getenv("USER_WEBHOOK_SECRET"); webhookSecret == "" {
		// Without the secret the identity endpoint is not registered at
		// all instead of accepting unverifiable events.
		log.Warn("USER_WEBHOOK_SECRET not set; identity webhook disabled")
	} else {
		wh, err := api.NewUserWebhook(webhookSecret, deduper, logger)
		if err != nil {
			log.Fatalf("webhook: %v", err)
		}
		webhooks = wh
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("taskboard"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, store, auth, webhooks, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// parseRedisOptions accepts either a redis URL or the comma-separated
// host,password=...,ssl=true form used by managed caches.
func parseRedisOptions(connStr string) *redis.Options {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts
	}
	parts := strings.Split(connStr, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
