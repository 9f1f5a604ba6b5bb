package httpapi

import (
	"net/http"

	"support-console/internal/calls"
	"support-console/internal/vapimetrics"

	"github.com/gin-gonic/gin"
)

// GetCallMetrics returns the stored metrics row for one call.
func (h Handlers) GetCallMetrics(c *gin.Context) {
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	rec, ok := h.Calls.GetMetrics(c.Request.Context(), callID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "metrics not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListCallMetrics returns stored metrics rows, newest first.
func (h Handlers) ListCallMetrics(c *gin.Context) {
	f, ok := metricsFilter(c)
	if !ok {
		return
	}
	rows := h.Calls.MetricsBatch(c.Request.Context(), f)
	c.JSON(http.StatusOK, gin.H{"metrics": rows, "count": len(rows)})
}

// MetricsStats aggregates cost and usage over a date range.
func (h Handlers) MetricsStats(c *gin.Context) {
	f, ok := metricsFilter(c)
	if !ok {
		return
	}
	if f.Limit == 0 {
		f.Limit = 10000
	}

	rows := h.Calls.MetricsBatch(c.Request.Context(), f)
	batch := make([]vapimetrics.Metrics, len(rows))
	for i, r := range rows {
		batch[i] = r.Metrics
	}

	c.JSON(http.StatusOK, gin.H{
		"costs": vapimetrics.Statistics(batch),
		"usage": vapimetrics.Usage(batch),
	})
}

func metricsFilter(c *gin.Context) (calls.MetricsFilter, bool) {
	f := calls.MetricsFilter{}
	var ok bool
	if f.From, ok = queryTime(c, "from"); !ok {
		return f, false
	}
	if f.To, ok = queryTime(c, "to"); !ok {
		return f, false
	}
	if f.Limit, ok = queryInt(c, "limit"); !ok {
		return f, false
	}
	return f, true
}
