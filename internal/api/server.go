// Package api exposes the vault's read accessors and the owner-gated
// admin surface over HTTP. The vault itself has no wire protocol;
// sessions are an in-process library concern. This surface exists for
// operators and indexers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/terminal-bench/assetvault/internal/asset"
	"github.com/terminal-bench/assetvault/internal/auth"
	"github.com/terminal-bench/assetvault/internal/feed"
	"github.com/terminal-bench/assetvault/internal/journal"
	"github.com/terminal-bench/assetvault/internal/ledger"
	"github.com/terminal-bench/assetvault/internal/shares"
	"github.com/terminal-bench/assetvault/internal/vault"
	"github.com/terminal-bench/assetvault/pkg/circuit"
	"github.com/terminal-bench/assetvault/pkg/num"
)

const reserveCacheTTL = 2 * time.Second

// Config holds server configuration.
type Config struct {
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Server is the HTTP surface over one vault instance.
type Server struct {
	router      *gin.Engine
	vault       *vault.Vault
	shares      *shares.Ledger
	registry    *asset.Registry
	bank        *asset.Bank
	vaultAddr   asset.Address
	auth        *auth.Service
	redis       *redis.Client // optional
	journal     *journal.Journal
	eventFeed   *feed.Feed
	breakers    *circuit.Group
	rateLimiter *rateLimiter
}

// Options carries the collaborators the server exposes. Redis, journal
// and feed are optional.
type Options struct {
	Vault     *vault.Vault
	Shares    *shares.Ledger
	Registry  *asset.Registry
	Bank      *asset.Bank
	VaultAddr asset.Address
	Auth      *auth.Service
	Redis     *redis.Client
	Journal   *journal.Journal
	Feed      *feed.Feed
}

// NewServer builds the router.
func NewServer(cfg Config, opts Options) *Server {
	s := &Server{
		router:    gin.Default(),
		vault:     opts.Vault,
		shares:    opts.Shares,
		registry:  opts.Registry,
		bank:      opts.Bank,
		vaultAddr: opts.VaultAddr,
		auth:      opts.Auth,
		redis:     opts.Redis,
		journal:   opts.Journal,
		eventFeed: opts.Feed,
		breakers: circuit.NewGroup(circuit.Config{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			HalfOpenMax: 3,
		}),
		rateLimiter: &rateLimiter{
			requests: make(map[string][]time.Time),
			limit:    cfg.RateLimitMax,
			window:   cfg.RateLimitWindow,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.rateLimitMiddleware())
	s.router.Use(s.tracingMiddleware())

	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/vault/locker", s.getLocker)
		v1.GET("/vault/unsettled", s.getUnsettled)
		v1.GET("/vault/delta/:settler/:currency", s.getDelta)
		v1.GET("/vault/reserves/:currency", s.getReserves)
		v1.GET("/vault/apps/:app", s.getApp)
		v1.GET("/vault/apps/:app/reserves/:currency", s.getAppReserve)
		v1.GET("/vault/shares/:holder/:currency", s.getShares)
		v1.GET("/vault/currencies", s.listCurrencies)
		v1.GET("/vault/sessions", s.listSessions)
		v1.POST("/vault/sync/:currency", s.postSync)

		v1.POST("/admin/apps", s.ownerMiddleware(), s.registerApp)
		v1.POST("/admin/currencies", s.ownerMiddleware(), s.registerCurrency)

		v1.GET("/ws", s.handleWebSocket)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Middleware.

func (s *Server) ownerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		claims, err := s.auth.VerifyOwner(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("owner", claims.Subject)
		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// Handlers.

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) getLocker(c *gin.Context) {
	holder, locked := s.vault.Locker()
	c.JSON(http.StatusOK, gin.H{"locked": locked, "holder": string(holder)})
}

func (s *Server) getUnsettled(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"unsettled_deltas": s.vault.UnsettledDeltaCount()})
}

func (s *Server) getDelta(c *gin.Context) {
	settler := asset.Address(c.Param("settler"))
	currencyID := c.Param("currency")

	delta := s.vault.CurrencyDelta(settler, currencyID)
	resp := gin.H{
		"settler":  string(settler),
		"currency": currencyID,
		"delta":    delta.String(),
	}
	if cur, ok := s.registry.Lookup(currencyID); ok {
		resp["delta_display"] = num.FormatUnits(delta, cur.Decimals())
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getReserves(c *gin.Context) {
	currencyID := c.Param("currency")
	cacheKey := "vault:reserves:" + currencyID

	if s.redis != nil {
		var cached string
		err := s.breakers.Execute(c.Request.Context(), "redis", func() error {
			var err error
			cached, err = s.redis.Get(c.Request.Context(), cacheKey).Result()
			return err
		})
		if err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			return
		}
	}

	reserves := s.vault.ReservesOf(currencyID)
	resp := gin.H{"currency": currencyID, "reserves": reserves.String()}
	if cur, ok := s.registry.Lookup(currencyID); ok {
		resp["reserves_display"] = num.FormatUnits(reserves, cur.Decimals())
	}

	if s.redis != nil {
		if payload, err := json.Marshal(resp); err == nil {
			s.breakers.Execute(c.Request.Context(), "redis", func() error {
				return s.redis.Set(c.Request.Context(), cacheKey, payload, reserveCacheTTL).Err()
			})
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getApp(c *gin.Context) {
	app := asset.Address(c.Param("app"))
	c.JSON(http.StatusOK, gin.H{
		"app":        string(app),
		"registered": s.vault.AppRegistered(app),
	})
}

func (s *Server) getAppReserve(c *gin.Context) {
	app := asset.Address(c.Param("app"))
	currencyID := c.Param("currency")

	reserve := s.vault.AppReserveOf(app, currencyID)
	resp := gin.H{
		"app":      string(app),
		"currency": currencyID,
		"reserve":  reserve.String(),
	}
	if cur, ok := s.registry.Lookup(currencyID); ok {
		resp["reserve_display"] = num.FormatUnits(reserve, cur.Decimals())
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getShares(c *gin.Context) {
	holder := asset.Address(c.Param("holder"))
	currencyID := c.Param("currency")

	balance := s.shares.BalanceOf(holder, currencyID)
	resp := gin.H{
		"holder":   string(holder),
		"currency": currencyID,
		"shares":   balance.String(),
	}
	if cur, ok := s.registry.Lookup(currencyID); ok {
		resp["shares_display"] = num.FormatUnits(balance, cur.Decimals())
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listCurrencies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"currencies": s.registry.IDs()})
}

func (s *Server) listSessions(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": []journal.SessionRecord{}})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	records, err := s.journal.Sessions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []journal.SessionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": records})
}

func (s *Server) postSync(c *gin.Context) {
	currencyID := c.Param("currency")
	cur, ok := s.registry.Lookup(currencyID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown currency"})
		return
	}

	balance, err := s.vault.Sync(c.Request.Context(), cur)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"currency":         currencyID,
		"reserves":         balance.String(),
		"reserves_display": num.FormatUnits(balance, cur.Decimals()),
	})
}

func (s *Server) registerApp(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := s.vault.RegisterApp(c.Request.Context(), asset.Address(req.Address)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"app": req.Address, "registered": true})
}

func (s *Server) registerCurrency(c *gin.Context) {
	var req struct {
		ID       string `json:"id" binding:"required"`
		Decimals int32  `json:"decimals"`
		Native   bool   `json:"native"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	cur := asset.NewBankCurrency(s.bank, req.ID, req.Decimals, req.Native, s.vaultAddr)
	if err := s.registry.Register(cur); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"currency": req.ID})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if s.eventFeed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event feed not available"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s.eventFeed.ServeWS(c.Request.Context(), conn)
}

// statusFor maps vault failures to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrAppUnregistered):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrNoLocker):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrAlreadyLocked):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrUnsettledBalance),
		errors.Is(err, ledger.ErrArithmeticOverflow),
		errors.Is(err, ledger.ErrReserveUnderflow),
		errors.Is(err, ledger.ErrReserveOverflow),
		errors.Is(err, vault.ErrArithmeticUnderflow),
		errors.Is(err, vault.ErrNonNativeSettleValue):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// rateLimiter is a sliding-window per-client limiter.
type rateLimiter struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	limit     int
	window    time.Duration
	lastSweep time.Time
}

func (rl *rateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	// Evict clients whose whole window has expired, at most once per
	// window, so the map does not grow with one entry per IP forever.
	if now.Sub(rl.lastSweep) >= rl.window {
		for k, times := range rl.requests {
			live := times[:0]
			for _, t := range times {
				if t.After(cutoff) {
					live = append(live, t)
				}
			}
			if len(live) == 0 {
				delete(rl.requests, k)
			} else {
				rl.requests[k] = live
			}
		}
		rl.lastSweep = now
	}

	valid := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}
