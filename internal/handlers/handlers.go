package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"folio/internal/models"
	"folio/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Refresher is the part of the refresh service the API needs.
type Refresher interface {
	Refresh(ctx context.Context) (*models.Report, error)
	Current() (*models.Report, error)
	RecordPrice(ctx context.Context, assetID string, day time.Time, price decimal.Decimal, currency string) error
	Refreshes(ctx context.Context, limit int) ([]models.Refresh, error)
}

type Handler struct {
	svc Refresher
	log *logrus.Logger
}

func NewHandler(svc Refresher, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts every route on rg.
func (h *Handler) Register(rg gin.IRouter) {
	rg.GET("/health", h.Health)
	rg.POST("/refresh", h.PostRefresh)
	rg.GET("/refreshes", h.GetRefreshes)
	rg.GET("/series/:name", h.GetSeries)
	rg.GET("/holdings/:window", h.GetHoldings)
	rg.GET("/summary/:window", h.GetSummary)
	rg.GET("/exposure", h.GetExposure)
	rg.GET("/transactions", h.GetTransactions)
	rg.GET("/issues", h.GetIssues)
	rg.POST("/prices", h.PostPrice)
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if rep, err := h.svc.Current(); err == nil {
		body["run_id"] = rep.RunID
		body["today"] = rep.Today.Format(models.DayLayout)
		body["generated_at"] = rep.GeneratedAt
	}
	c.JSON(http.StatusOK, body)
}

// PostRefresh runs a refresh synchronously.
func (h *Handler) PostRefresh(c *gin.Context) {
	rep, err := h.svc.Refresh(c.Request.Context())
	if errors.Is(err, service.ErrRefreshInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Errorf("refresh failed: %v", err)
		body := gin.H{"error": err.Error()}
		if prev, cerr := h.svc.Current(); cerr == nil {
			body["serving"] = prev.RunID
		}
		c.JSON(http.StatusBadGateway, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":       rep.RunID,
		"today":        rep.Today.Format(models.DayLayout),
		"transactions": len(rep.Transactions),
		"issues":       len(rep.Issues),
	})
}

func (h *Handler) GetRefreshes(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	runs, err := h.svc.Refreshes(c.Request.Context(), limit)
	if err != nil {
		h.log.Errorf("list refreshes failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *Handler) GetSeries(c *gin.Context) {
	rep, ok := h.current(c)
	if !ok {
		return
	}
	t, found := rep.Table(c.Param("name"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown series " + c.Param("name")})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) GetHoldings(c *gin.Context) {
	rep, ok := h.current(c)
	if !ok {
		return
	}
	s, found := rep.Snapshot(c.Param("window"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown window " + c.Param("window")})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) GetSummary(c *gin.Context) {
	rep, ok := h.current(c)
	if !ok {
		return
	}
	s, found := rep.Summary(c.Param("window"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown window " + c.Param("window")})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) GetExposure(c *gin.Context) {
	rep, ok := h.current(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rep.Exposure)
}

// GetTransactions lists the normalized feed, optionally for one asset.
func (h *Handler) GetTransactions(c *gin.Context) {
	rep, ok := h.current(c)
	if !ok {
		return
	}
	asset := c.Query("asset")
	res := []models.Transaction{}
	for _, t := range rep.Transactions {
		if asset == "" || t.AssetID == asset {
			res = append(res, t)
		}
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetIssues(c *gin.Context) {
	rep, ok := h.current(c)
	if !ok {
		return
	}
	issues := rep.Issues
	if issues == nil {
		issues = []models.Issue{}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": rep.RunID, "issues": issues})
}

type PriceRequest struct {
	AssetID  string `json:"asset_id" binding:"required"`
	Date     string `json:"date" binding:"required"`
	Price    string `json:"price" binding:"required"`
	Currency string `json:"currency"`
}

// PostPrice records a manual quote for an asset priced from the database.
func (h *Handler) PostPrice(c *gin.Context) {
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid price body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	day, err := time.Parse(models.DayLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, want YYYY-MM-DD"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price format"})
		return
	}
	err = h.svc.RecordPrice(c.Request.Context(), req.AssetID, day, price, strings.ToUpper(req.Currency))
	if errors.Is(err, service.ErrInvalidPrice) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Errorf("record price failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"asset_id": req.AssetID, "date": req.Date, "price": price.String()})
}

// current writes 503 when no refresh has succeeded yet.
func (h *Handler) current(c *gin.Context) (*models.Report, bool) {
	rep, err := h.svc.Current()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return nil, false
	}
	return rep, true
}
