package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"options-advisor/internal/database"
	"options-advisor/internal/scan"
)

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{"status": "ok"}

	if s.repo != nil {
		if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
		} else {
			status["database"] = "ok"
		}
	}

	if s.market != nil {
		hits, misses := s.market.CacheStats()
		status["cache"] = gin.H{"hits": hits, "misses": misses}
	}

	status["open_positions"] = s.book.Len()

	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (s *Server) handleListPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.book.List()})
}

func (s *Server) handleListRecommendations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	recs, err := s.repo.ListRecommendations(
		c.Request.Context(),
		c.Query("symbol"),
		c.Query("account"),
		limit,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

func (s *Server) handleListResolutions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := s.repo.ListResolutionEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolutions": events})
}

func (s *Server) handleListScanRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := s.repo.ListScanRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": runs})
}

func (s *Server) handleLatestScan(c *gin.Context) {
	report := s.scans.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan has run yet"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleTriggerScan runs a scan on demand. The scheduler's overlap guard
// still applies: a trigger during a running scan reports skipped.
func (s *Server) handleTriggerScan(c *gin.Context) {
	kind := scan.Kind(c.DefaultQuery("kind", string(scan.ScanMidday)))
	switch kind {
	case scan.ScanMorning, scan.ScanPostOpen, scan.ScanMidday, scan.ScanPreClose, scan.ScanEvening:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scan kind"})
		return
	}

	report := s.scans.Run(c.Request.Context(), kind)
	code := http.StatusOK
	if report.Skipped {
		code = http.StatusConflict
	}
	c.JSON(code, report)
}

type feedbackRequest struct {
	RecommendationID string `json:"recommendation_id" binding:"required"`
	Verdict          string `json:"verdict" binding:"required"`
	Comment          string `json:"comment"`
}

func (s *Server) handleCreateFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Verdict {
	case "followed", "ignored", "wrong":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "verdict must be followed, ignored or wrong"})
		return
	}

	fb := &database.Feedback{
		RecommendationID: req.RecommendationID,
		Verdict:          req.Verdict,
		Comment:          req.Comment,
	}
	if err := s.repo.CreateFeedback(c.Request.Context(), fb); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, fb)
}
