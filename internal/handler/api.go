package handler

import (
	"errors"
	"net/http"
	"strconv"

	"drink-detector/internal/models"
	"drink-detector/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles HTTP requests
type Handler struct {
	ingestor *service.Ingestor
	labeler  *service.Labeler
	training *service.TrainingService
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	ingestor *service.Ingestor,
	labeler *service.Labeler,
	training *service.TrainingService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		ingestor: ingestor,
		labeler:  labeler,
		training: training,
		logger:   logger,
	}
}

// NewRouter builds the gin engine with CORS and every route registered
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors())
	h.RegisterRoutes(router)
	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		// Ingestion
		api.POST("/ingest", h.Ingest)

		// Labeling
		api.GET("/samples/unlabeled", h.ListUnlabeled)
		api.GET("/samples/stats", h.GetStats)
		api.POST("/labels", h.LabelOne)
		api.POST("/labels/batch", h.LabelBatch)
		api.POST("/labels/range", h.LabelRange)

		// Export
		api.GET("/export", h.ExportJSON)
		api.GET("/export/json", h.ExportJSON)
		api.GET("/export/csv", h.ExportCSV)
		api.GET("/export/xlsx", h.ExportXLSX)

		// Training
		api.POST("/training/runs", h.StartTraining)
		api.GET("/training/runs/:id", h.GetTrainingRun)

		api.GET("/health", h.HealthCheck)
	}

	// Health check
	r.GET("/health", h.HealthCheck)
}

// Ingest stores one sample from the device stream
func (h *Handler) Ingest(c *gin.Context) {
	var record models.IngestRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}

	if err := h.ingestor.Ingest(c.Request.Context(), record); err != nil {
		h.fail(c, err, "failed to store sample")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// ListUnlabeled returns the most recent unreviewed samples, oldest first
func (h *Handler) ListUnlabeled(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultUnlabeledLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	samples, err := h.labeler.ListUnlabeled(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err, "failed to get unlabeled samples")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sensor_data": nonNil(samples),
		"total":       len(samples),
	})
}

// LabelOne labels a single sample
func (h *Handler) LabelOne(c *gin.Context) {
	var req models.LabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id or label"})
		return
	}

	if err := h.labeler.LabelByID(c.Request.Context(), *req.ID, *req.Label); err != nil {
		h.fail(c, err, "failed to update label")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// LabelBatch applies one label to a list of samples
func (h *Handler) LabelBatch(c *gin.Context) {
	var req models.BatchLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing ids or invalid label"})
		return
	}

	if err := h.labeler.LabelByBatch(c.Request.Context(), req.IDs, *req.Label); err != nil {
		h.fail(c, err, "failed to batch label")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// LabelRange labels every sample recorded within [start, end]
func (h *Handler) LabelRange(c *gin.Context) {
	var req models.RangeLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing start, end or label"})
		return
	}

	start, err := models.ParseTimestamp(req.Start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start: " + err.Error()})
		return
	}
	end, err := models.ParseTimestamp(req.End)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end: " + err.Error()})
		return
	}

	if err := h.labeler.LabelByRange(c.Request.Context(), start, end, *req.Label); err != nil {
		h.fail(c, err, "failed to label range")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// GetStats returns labeling progress
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.labeler.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to get stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// StartTraining kicks off an asynchronous training run
func (h *Handler) StartTraining(c *gin.Context) {
	runID, err := h.training.StartRun(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to start training run")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":  runID,
		"status":  models.RunPending,
		"message": "Training started. Check /api/v1/training/runs/" + runID + " for status",
	})
}

// GetTrainingRun returns run status and, once done, its report
func (h *Handler) GetTrainingRun(c *gin.Context) {
	run, err := h.training.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get training run")
		return
	}

	c.JSON(http.StatusOK, run)
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "drink-detector",
		"version": "1.0.0",
	})
}

// fail maps domain errors to status codes; anything unexpected is logged
// and hidden behind msg
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, models.ErrInvalidLabel):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func nonNil(samples []models.Sample) []models.Sample {
	if samples == nil {
		return []models.Sample{}
	}
	return samples
}
