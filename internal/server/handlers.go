package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudguard/internal/device"
	"github.com/mbd888/fraudguard/internal/engine"
	"github.com/mbd888/fraudguard/internal/logging"
	"github.com/mbd888/fraudguard/internal/takeover"
	"github.com/mbd888/fraudguard/internal/txrisk"
	"github.com/mbd888/fraudguard/internal/validation"
)

// -----------------------------------------------------------------------------
// Health & info
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	checks := make(map[string]string)
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "FraudGuard",
		"description": "Real-time device fingerprinting and fraud risk scoring",
		"version":     "0.1.0",
	})
}

func (s *Server) realtimeStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

// -----------------------------------------------------------------------------
// Scoring endpoints
// -----------------------------------------------------------------------------

// validateFingerprintHandler handles POST /v1/fingerprint/validate
func (s *Server) validateFingerprintHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req engine.ValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("payload.userAgent", req.Payload.UserAgent),
		validation.ValidUserID("userId", req.UserID),
		validation.MaxLength("payload.userAgent", req.Payload.UserAgent, validation.MaxStringLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	result, err := s.engine.ValidateFingerprint(ctx, req)
	if err != nil {
		logging.L(ctx).Error("fingerprint validation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to validate fingerprint",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// trustScoreHandler handles POST /v1/trust-score
func (s *Server) trustScoreHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		FingerprintHash string `json:"fingerprintHash" binding:"required"`
		UserID          string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	req.FingerprintHash = validation.SanitizeHash(req.FingerprintHash)
	if !validation.IsValidHash(req.FingerprintHash) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_hash",
			"message": "fingerprintHash must be a SHA-256 hash (64 hex chars)",
		})
		return
	}

	score, err := s.engine.CalculateTrustScore(ctx, req.FingerprintHash, req.UserID)
	if err != nil {
		s.deviceError(c, err, "Failed to calculate trust score")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fingerprintHash": req.FingerprintHash,
		"trustScore":      score.Value,
		"riskLevel":       score.RiskLevel,
		"factors":         score.Factors,
	})
}

// anomaliesHandler handles POST /v1/anomalies
func (s *Server) anomaliesHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		FingerprintHash string `json:"fingerprintHash" binding:"required"`
		UserID          string `json:"userId"`
		Timezone        string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	req.FingerprintHash = validation.SanitizeHash(req.FingerprintHash)
	if !validation.IsValidHash(req.FingerprintHash) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_hash",
			"message": "fingerprintHash must be a SHA-256 hash (64 hex chars)",
		})
		return
	}

	report, err := s.engine.DetectAnomalies(ctx, req.FingerprintHash, req.UserID, validation.SanitizeString(req.Timezone, 500))
	if err != nil {
		s.deviceError(c, err, "Failed to detect anomalies")
		return
	}

	c.JSON(http.StatusOK, report)
}

// takeoverCheckHandler handles POST /v1/takeover/check
func (s *Server) takeoverCheckHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var attempt takeover.Attempt
	if err := c.ShouldBindJSON(&attempt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("userId", attempt.UserID),
		validation.Required("ipAddress", attempt.IPAddress),
		validation.ValidUserID("userId", attempt.UserID),
		validation.ValidHash("fingerprintHash", attempt.FingerprintHash),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	verdict, err := s.engine.DetectAccountTakeover(ctx, attempt)
	if err != nil {
		logging.L(ctx).Error("takeover check failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to check login attempt",
		})
		return
	}

	c.JSON(http.StatusOK, verdict)
}

// analyzeTransactionHandler handles POST /v1/transactions/analyze
func (s *Server) analyzeTransactionHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var tx txrisk.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("userId", tx.UserID),
		validation.ValidUserID("userId", tx.UserID),
		validation.ValidHash("fingerprintHash", tx.FingerprintHash),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	if tx.AmountUSD < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amountUsd must not be negative",
		})
		return
	}

	assessment := s.engine.AnalyzeTransaction(ctx, tx)
	c.JSON(http.StatusOK, assessment)
}

// -----------------------------------------------------------------------------
// Device inspection
// -----------------------------------------------------------------------------

// getDeviceHandler handles GET /v1/devices/:hash
func (s *Server) getDeviceHandler(c *gin.Context) {
	fp, err := s.engine.GetDevice(c.Request.Context(), c.Param("hash"))
	if err != nil {
		s.deviceError(c, err, "Failed to load device")
		return
	}
	c.JSON(http.StatusOK, fp)
}

// suspiciousDeviceHandler handles GET /v1/devices/:hash/suspicious
func (s *Server) suspiciousDeviceHandler(c *gin.Context) {
	result, err := s.engine.IsSuspiciousDevice(c.Request.Context(), c.Param("hash"))
	if err != nil {
		s.deviceError(c, err, "Failed to inspect device")
		return
	}
	c.JSON(http.StatusOK, result)
}

// deviceIncidentsHandler handles GET /v1/devices/:hash/incidents
func (s *Server) deviceIncidentsHandler(c *gin.Context) {
	incidents, err := s.engine.ListOpenIncidents(c.Request.Context(), c.Param("hash"))
	if err != nil {
		s.deviceError(c, err, "Failed to list incidents")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// -----------------------------------------------------------------------------
// Admin
// -----------------------------------------------------------------------------

// blockDeviceHandler handles POST /v1/admin/devices/:hash/block
func (s *Server) blockDeviceHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reason is required",
		})
		return
	}
	req.Reason = validation.SanitizeString(req.Reason, 500)

	if err := s.engine.BlockDevice(ctx, c.Param("hash"), req.Reason); err != nil {
		s.deviceError(c, err, "Failed to block device")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "blocked"})
}

// unblockDeviceHandler handles POST /v1/admin/devices/:hash/unblock
func (s *Server) unblockDeviceHandler(c *gin.Context) {
	resolved, err := s.engine.UnblockDevice(c.Request.Context(), c.Param("hash"))
	if err != nil {
		s.deviceError(c, err, "Failed to unblock device")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "unblocked",
		"resolvedIncidents": resolved,
	})
}

// recordSuspiciousHandler handles POST /v1/admin/devices/:hash/suspicious
func (s *Server) recordSuspiciousHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		UserID string `json:"userId"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reason is required",
		})
		return
	}
	req.Reason = validation.SanitizeString(req.Reason, 500)

	incident, err := s.engine.RecordSuspiciousActivity(ctx, c.Param("hash"), req.UserID, req.Reason)
	if err != nil {
		s.deviceError(c, err, "Failed to record suspicious activity")
		return
	}

	c.JSON(http.StatusCreated, incident)
}

// verifyDeviceHandler handles POST /v1/admin/users/:userId/devices/:hash/verify
func (s *Server) verifyDeviceHandler(c *gin.Context) {
	if err := s.engine.VerifyDevice(c.Request.Context(), c.Param("userId"), c.Param("hash")); err != nil {
		s.deviceError(c, err, "Failed to verify device")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "verified"})
}

// linkDeviceHandler handles POST /v1/admin/users/:userId/devices/:hash
func (s *Server) linkDeviceHandler(c *gin.Context) {
	if err := s.engine.LinkDeviceToUser(c.Request.Context(), c.Param("userId"), c.Param("hash")); err != nil {
		s.deviceError(c, err, "Failed to link device")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "linked"})
}

// removeDeviceHandler handles DELETE /v1/admin/users/:userId/devices/:hash
func (s *Server) removeDeviceHandler(c *gin.Context) {
	if err := s.engine.RemoveUserDevice(c.Request.Context(), c.Param("userId"), c.Param("hash")); err != nil {
		s.deviceError(c, err, "Failed to remove device")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// listUserDevicesHandler handles GET /v1/admin/users/:userId/devices
func (s *Server) listUserDevicesHandler(c *gin.Context) {
	assocs, err := s.engine.ListUserDevices(c.Request.Context(), c.Param("userId"))
	if err != nil {
		s.deviceError(c, err, "Failed to list devices")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"devices": assocs,
		"count":   len(assocs),
	})
}

// listAssessmentsHandler handles GET /v1/admin/users/:userId/assessments
func (s *Server) listAssessmentsHandler(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	assessments, err := s.engine.ListTransactionAssessments(c.Request.Context(), c.Param("userId"), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list assessments", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list assessments",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assessments": assessments,
		"count":       len(assessments),
	})
}

// listIncidentsHandler handles GET /v1/admin/incidents
// Optional ?hash= filter scopes to one device.
func (s *Server) listIncidentsHandler(c *gin.Context) {
	hash := validation.SanitizeHash(c.Query("hash"))
	if hash != "" && !validation.IsValidHash(hash) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_hash",
			"message": "hash must be a SHA-256 fingerprint hash (64 hex chars)",
		})
		return
	}

	incidents, err := s.engine.ListOpenIncidents(c.Request.Context(), hash)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list incidents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list incidents",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// -----------------------------------------------------------------------------
// Error mapping
// -----------------------------------------------------------------------------

// deviceError maps store sentinels to HTTP responses
func (s *Server) deviceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "device_not_found",
			"message": "No device with that fingerprint hash",
		})
	case errors.Is(err, device.ErrAssociationNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "association_not_found",
			"message": "Device is not linked to that user",
		})
	default:
		logging.L(c.Request.Context()).Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": fallback,
		})
	}
}
