package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/samspacey/bsa-data/internal/database"
	"github.com/samspacey/bsa-data/internal/models"
	"github.com/samspacey/bsa-data/internal/vectorindex"
	"github.com/sirupsen/logrus"
)

// HealthChecker manages health checks for all services
type HealthChecker struct {
	dbManager    *database.Manager
	healthRepo   models.SystemHealthRepository
	index        vectorindex.Index
	inferenceURL string
	apiKey       string
	logger       *logrus.Logger
}

func NewHealthChecker(
	dbManager *database.Manager,
	healthRepo models.SystemHealthRepository,
	index vectorindex.Index,
	inferenceURL, apiKey string,
	logger *logrus.Logger,
) *HealthChecker {
	return &HealthChecker{
		dbManager:    dbManager,
		healthRepo:   healthRepo,
		index:        index,
		inferenceURL: inferenceURL,
		apiKey:       apiKey,
		logger:       logger,
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// CheckPostgreSQL checks PostgreSQL database health
func (h *HealthChecker) CheckPostgreSQL() ServiceHealth {
	start := time.Now()
	err := h.dbManager.PingDatabase()
	return h.record("postgresql", start, err)
}

// CheckRedis checks Redis health
func (h *HealthChecker) CheckRedis() ServiceHealth {
	start := time.Now()
	err := h.dbManager.PingRedis()
	return h.record("redis", start, err)
}

// CheckVectorIndex checks the vector index by counting documents
func (h *HealthChecker) CheckVectorIndex(ctx context.Context) ServiceHealth {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := h.index.Count(checkCtx)
	return h.record("vector_index", start, err)
}

// CheckInference checks the inference API
func (h *HealthChecker) CheckInference(ctx context.Context) ServiceHealth {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, "GET", h.inferenceURL+"/models", nil)
	if err != nil {
		return h.record("inference", start, err)
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			err = fmt.Errorf("HTTP %d", resp.StatusCode)
		}
	}
	return h.record("inference", start, err)
}

func (h *HealthChecker) record(name string, start time.Time, err error) ServiceHealth {
	responseTime := int(time.Since(start).Milliseconds())

	status := "healthy"
	errorMsg := ""
	if err != nil {
		status = "unhealthy"
		errorMsg = err.Error()
		h.logger.WithError(err).WithField("service", name).Error("Health check failed")
	}

	// Persist for trend visibility
	if updateErr := h.healthRepo.UpdateServiceHealth(name, status, responseTime, errorMsg); updateErr != nil {
		h.logger.WithError(updateErr).Warn("Failed to persist health status")
	}

	return ServiceHealth{
		Name:         name,
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckAll performs health checks on all services
func (h *HealthChecker) CheckAll(ctx context.Context) OverallHealth {
	services := []ServiceHealth{
		h.CheckPostgreSQL(),
		h.CheckRedis(),
		h.CheckVectorIndex(ctx),
		h.CheckInference(ctx),
	}

	overallStatus := "healthy"
	for _, service := range services {
		if service.Status == "unhealthy" {
			overallStatus = "unhealthy"
			break
		}
		if service.Status == "degraded" && overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	}

	return OverallHealth{
		Status:   overallStatus,
		Services: services,
		Uptime:   h.getUptime(),
	}
}

var startTime = time.Now()

func (h *HealthChecker) getUptime() string {
	return time.Since(startTime).String()
}

// PeriodicHealthCheck runs health checks periodically
func (h *HealthChecker) PeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}
