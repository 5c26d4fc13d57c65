// Package api exposes the analysis service over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"BuyTracer/internal/calendar"
	"BuyTracer/internal/model"
	"BuyTracer/internal/recorder"
	"BuyTracer/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const basePath = "/api"

// Handler routes API requests to the service.
type Handler struct {
	router  *gin.Engine
	svc     *service.Service
	metrics http.Handler
	version string
	debug   bool
}

// Options configures a Handler.
type Options struct {
	Version string
	Debug   bool
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewHandler builds the router.
func NewHandler(svc *service.Service, opts Options) *Handler {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	h := &Handler{
		router:  router,
		svc:     svc,
		metrics: opts.Metrics,
		version: opts.Version,
		debug:   opts.Debug,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	if h.metrics != nil {
		h.router.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := h.router.Group(basePath)
	{
		api.POST("/analyze", h.analyze)
		api.GET("/history", h.history)
		api.GET("/cache/:ticker", h.cacheStatus)
		api.DELETE("/cache/:ticker", h.clearCache)
		api.POST("/update/:ticker", h.forceUpdate)
		api.GET("/signals/:ticker", h.signalHistory)
		api.GET("/stocks/list", h.listStocks)
		api.GET("/health", h.health)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).Round(time.Millisecond),
		}).Debug("request")
	}
}

type analyzeRequest struct {
	Ticker    string `json:"ticker"`
	StartDate string `json:"start_date"`
	Days      int    `json:"days"`
}

func (h *Handler) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, model.ErrInvalidRequest.WithDetail(err.Error()))
		return
	}
	if req.Ticker == "" {
		h.writeError(c, model.ErrInvalidRequest.WithDetail("ticker is required"))
		return
	}
	if req.Days < 0 {
		h.writeError(c, model.ErrInvalidRequest.WithDetail("days must not be negative"))
		return
	}
	var start time.Time
	if req.StartDate != "" {
		d, err := calendar.ParseDate(req.StartDate)
		if err != nil {
			h.writeError(c, model.ErrInvalidRequest.WithDetail(err.Error()))
			return
		}
		start = d
	}

	a, err := h.svc.Analyze(c.Request.Context(), req.Ticker, start, req.Days)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeData(c, http.StatusOK, a)
}

type listResponse[T any] struct {
	TotalCount int `json:"total_count"`
	Stocks     []T `json:"stocks"`
}

func (h *Handler) history(c *gin.Context) {
	infos, err := h.svc.History(c.Query("sort_by"), c.Query("order"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeData(c, http.StatusOK, listResponse[model.CacheInfo]{TotalCount: len(infos), Stocks: infos})
}

func (h *Handler) cacheStatus(c *gin.Context) {
	st, err := h.svc.CacheStatus(c.Param("ticker"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !st.Exists {
		h.writeError(c, model.ErrCacheNotFound.WithDetail(st.Ticker))
		return
	}
	h.writeData(c, http.StatusOK, st)
}

func (h *Handler) clearCache(c *gin.Context) {
	ticker := c.Param("ticker")
	if err := h.svc.ClearCache(ticker); err != nil {
		h.writeError(c, err)
		return
	}
	h.writeData(c, http.StatusOK, gin.H{"ticker": ticker, "deleted": true})
}

func (h *Handler) forceUpdate(c *gin.Context) {
	res, err := h.svc.ForceUpdate(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeData(c, http.StatusOK, res)
}

type signalHistoryResponse struct {
	Ticker     string                  `json:"ticker"`
	TotalCount int                     `json:"total_count"`
	Signals    []recorder.SignalRecord `json:"signals"`
}

func (h *Handler) signalHistory(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(c, model.ErrInvalidRequest.WithDetail("limit must be a positive integer"))
			return
		}
		limit = n
	}
	ticker, err := service.NormalizeTicker(c.Param("ticker"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	recs, err := h.svc.SignalHistory(ticker, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeData(c, http.StatusOK, signalHistoryResponse{Ticker: ticker, TotalCount: len(recs), Signals: recs})
}

type stockEntry struct {
	Ticker  string `json:"ticker"`
	Name    string `json:"name"`
	Display string `json:"display"`
}

func (h *Handler) listStocks(c *gin.Context) {
	listings := h.svc.Listings()
	out := make([]stockEntry, len(listings))
	for i, l := range listings {
		out[i] = stockEntry{Ticker: l.Ticker, Name: l.Name, Display: l.Ticker + " " + l.Name}
	}
	h.writeData(c, http.StatusOK, listResponse[stockEntry]{TotalCount: len(out), Stocks: out})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}
