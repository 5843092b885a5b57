// Package httpapi wires spec §6's HTTP surface onto gin: token issuance,
// manual/scheduled cycle control, job status, the SSE event stream, and
// CRUD over the persisted tables.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kestrelsupply/replenisher-agent/auth"
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/kestrelsupply/replenisher-agent/pkg/metrics"
	"github.com/kestrelsupply/replenisher-agent/pkg/policy"
	"github.com/kestrelsupply/replenisher-agent/pkg/scheduler"
	"github.com/kestrelsupply/replenisher-agent/pkg/streaming"
	"github.com/rs/cors"
)

// Server bundles every collaborator the router needs.
type Server struct {
	Store      core.Store
	Jobs       core.JobStore
	Scheduler  *scheduler.Scheduler
	Bus        *streaming.Bus
	Dashboard  *streaming.Dashboard
	Metrics    *metrics.Metrics
	Policy     *policy.Engine
	Issuer     *auth.Issuer
}

// NewRouter builds the gin engine with every route from spec §6, CORS
// enabled for the operator console, and auth middleware on every
// write-capable route.
func (s *Server) NewRouter() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	r.POST("/token", s.handleToken)

	r.GET("/agent/stream/:id", s.handleStream)
	r.GET("/ws/dashboard", gin.WrapF(s.Dashboard.ServeHTTP))

	protected := r.Group("/", s.Issuer.Middleware())
	{
		protected.POST("/agent/run_once", s.handleRunOnce)
		protected.GET("/agent/job/:id", s.handleGetJob)
		protected.GET("/agent/jobs", s.handleListJobs)

		protected.GET("/inventory", s.handleListInventory)
		protected.GET("/inventory/:sku", s.handleGetInventory)
		protected.PUT("/inventory/:sku", s.handleUpsertInventory)

		protected.GET("/sales", s.handleListSales)
		protected.POST("/sales", s.handleRecordSale)

		protected.GET("/orders", s.handleListOrders)

		protected.GET("/alerts", s.handleListAlerts)

		protected.GET("/persistence/checkpoint", s.handleLatestCheckpoint)
		protected.GET("/persistence/episodes", s.handleListEpisodes)

		protected.GET("/policy", s.handlePolicyStatus)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}).Handler(r)
	return handler
}

func (s *Server) handleToken(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := s.Issuer.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

func (s *Server) handleRunOnce(c *gin.Context) {
	job, err := s.Scheduler.Trigger(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleGetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	job, ok, err := s.Jobs.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleListJobs(c *gin.Context) {
	jobs, err := s.Jobs.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) handleStream(c *gin.Context) {
	s.Bus.ServeHTTP(c.Writer, c.Request, c.Param("id"))
}

func (s *Server) handleListInventory(c *gin.Context) {
	items, err := s.Store.ListInventory(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) handleGetInventory(c *gin.Context) {
	rec, ok, err := s.Store.GetInventory(c.Request.Context(), c.Param("sku"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "sku not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleUpsertInventory(c *gin.Context) {
	var rec core.InventoryRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec.SKU = c.Param("sku")
	if err := s.Store.UpsertInventory(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleListSales(c *gin.Context) {
	since := time.Now().Add(-7 * 24 * time.Hour)
	sales, err := s.Store.ListSalesSince(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (s *Server) handleRecordSale(c *gin.Context) {
	var ev core.SalesEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ev.Date.IsZero() {
		ev.Date = time.Now()
	}
	if err := s.Store.RecordSale(c.Request.Context(), ev); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, ev)
}

func (s *Server) handleListOrders(c *gin.Context) {
	orders, err := s.Store.ListOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	alerts, err := s.Store.ListAlerts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) handleLatestCheckpoint(c *gin.Context) {
	cp, ok, err := s.Store.LatestStableCheckpoint(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stable checkpoint"})
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (s *Server) handleListEpisodes(c *gin.Context) {
	episodes, err := s.Store.ListEpisodes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, episodes)
}

func (s *Server) handlePolicyStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": s.Policy.Status(), "remaining": s.Policy.Remaining().String()})
}
