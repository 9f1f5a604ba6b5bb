package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"support-console/internal/calls"

	"github.com/gin-gonic/gin"
)

// GetCall returns one call log by vendor call id.
func (h Handlers) GetCall(c *gin.Context) {
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	rec, ok := h.Calls.GetCallLog(c.Request.Context(), callID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListCalls returns recent call logs, newest first. Filters: status, from,
// to (RFC 3339), limit, offset.
func (h Handlers) ListCalls(c *gin.Context) {
	f := calls.ListFilter{}

	if s := c.Query("status"); s != "" {
		if !calls.CallStatus(s).IsValid() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		f.Status = calls.CallStatus(s)
	}

	var ok bool
	if f.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if f.To, ok = queryTime(c, "to"); !ok {
		return
	}
	if f.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if f.Offset, ok = queryInt(c, "offset"); !ok {
		return
	}

	rows := h.Calls.RecentCalls(c.Request.Context(), f)
	c.JSON(http.StatusOK, gin.H{"calls": rows, "count": len(rows)})
}

// CallStats aggregates volume and quality over a date range.
func (h Handlers) CallStats(c *gin.Context) {
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stats := h.Calls.Statistics(ctx, from, to)
	quality := calls.Quality(h.Calls.RecentCalls(ctx, calls.ListFilter{From: from, To: to, Limit: 10000}))

	c.JSON(http.StatusOK, gin.H{"statistics": stats, "quality": quality})
}

// queryTime parses an optional RFC 3339 query parameter. On a malformed
// value it writes the 400 itself and reports !ok.
func queryTime(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC 3339"})
		return time.Time{}, false
	}
	return t, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}
