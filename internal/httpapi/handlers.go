package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ab-caller/internal/audit"
	"ab-caller/internal/auth"
	"ab-caller/internal/calls"
	"ab-caller/internal/reporting"
	"ab-caller/internal/routing"
	"ab-caller/internal/telephony"
	"ab-caller/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Dispatcher telephony.Dispatcher
	Routes     *routing.Table
	Audit      *audit.Service
	Reports    *reporting.Service

	// MaxBatch caps PUT batches; zero means no cap.
	MaxBatch int

	Now func() time.Time
}

// requiredCallFields are checked in this order; the first missing one is reported.
var requiredCallFields = []string{"destinationNumber", "group", "testId", "leadId"}

// MakeCall is the group-routed endpoint: the caller names a group and the
// derivation id and origin number come from the routing table.
func (h Handlers) MakeCall(c *gin.Context) {
	if h.Dispatcher == nil || h.Routes == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispatcher not configured"})
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil || body == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	fields := make(map[string]string, len(requiredCallFields))
	for _, key := range requiredCallFields {
		v, ok := stringField(body[key])
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing required field: " + key})
			return
		}
		fields[key] = v
	}

	route, err := h.Routes.Resolve(calls.Group(fields["group"]))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown group: %s", fields["group"])})
		return
	}

	req := route.Apply(fields["destinationNumber"], fields["testId"], fields["leadId"])
	res := h.Dispatcher.MakeCall(c.Request.Context(), req)
	h.logCall(c, req, res)

	c.JSON(http.StatusOK, res)
}

type directCallRequest struct {
	DestinationNumber string `json:"destinationNumber"`
	DerivationID      string `json:"derivationId"`
	OriginNumber      string `json:"originNumber"`
	Group             string `json:"group"`
	TestID            string `json:"testId"`
	LeadID            string `json:"leadId"`
}

// MakeDirectCall dispatches with caller-supplied derivation id and origin.
// A failed dispatch is reported as 500.
func (h Handlers) MakeDirectCall(c *gin.Context) {
	if h.Dispatcher == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispatcher not configured"})
		return
	}
	var in directCallRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	req := calls.Request{
		DestinationNumber: strings.TrimSpace(in.DestinationNumber),
		DerivationID:      strings.TrimSpace(in.DerivationID),
		OriginNumber:      strings.TrimSpace(in.OriginNumber),
		Group:             calls.Group(strings.TrimSpace(in.Group)),
		TestID:            in.TestID,
		LeadID:            in.LeadID,
	}
	if err := req.Validate(); err != nil {
		field := strings.TrimPrefix(err.Error(), calls.ErrMissingField.Error()+": ")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing required field: " + field})
		return
	}
	if !req.Group.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Group must be A or B"})
		return
	}

	res := h.Dispatcher.MakeCall(c.Request.Context(), req)
	h.logCall(c, req, res)

	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "Failed to make call"
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"callId":   res.CallID,
		"metadata": res.Metadata,
		"message":  "A/B call initiated successfully",
	})
}

type batchRequest struct {
	Requests json.RawMessage `json:"requests"`
}

// MakeBatchCalls dispatches a list of calls in order. Items that name a group
// but omit derivationId or originNumber are completed from the routing table.
func (h Handlers) MakeBatchCalls(c *gin.Context) {
	if h.Dispatcher == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispatcher not configured"})
		return
	}
	var in batchRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	raw := bytes.TrimSpace(in.Requests)
	if len(raw) == 0 || raw[0] != '[' {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Requests must be an array"})
		return
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Requests must be an array"})
		return
	}
	if h.MaxBatch > 0 && len(items) > h.MaxBatch {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Batch exceeds %d requests", h.MaxBatch)})
		return
	}
	reqs := make([]calls.Request, len(items))
	for i, item := range items {
		reqs[i] = h.Routes.Complete(requestFromItem(item))
	}

	results := h.Dispatcher.MakeBatchCalls(c.Request.Context(), reqs)
	if h.Audit != nil {
		if err := h.Audit.LogBatch(c.Request.Context(), actorOf(c), reqs, results); err != nil {
			logger.FromGin(c).Warn("audit batch failed", "err", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": results,
		"message": fmt.Sprintf("Processed %d A/B calls", len(results)),
	})
}

type connectionTestRequest struct {
	TestType          string `json:"testType"`
	DerivationID      string `json:"derivationId"`
	OriginNumber      string `json:"originNumber"`
	DestinationNumber string `json:"destinationNumber"`
}

// TestConnection probes the webhook: login only, a test call, or a full call.
func (h Handlers) TestConnection(c *gin.Context) {
	if h.Dispatcher == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispatcher not configured", "status": "server_error"})
		return
	}
	var in connectionTestRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	params := telephony.ProbeParams{
		DerivationID:      in.DerivationID,
		OriginNumber:      in.OriginNumber,
		DestinationNumber: in.DestinationNumber,
	}
	if h.Routes != nil && (params.DerivationID == "" || params.OriginNumber == "") {
		if r, err := h.Routes.Resolve(calls.GroupA); err == nil {
			if params.DerivationID == "" {
				params.DerivationID = r.DerivationID
			}
			if params.OriginNumber == "" {
				params.OriginNumber = r.OriginNumber
			}
		}
	}

	res, err := telephony.Probe(c.Request.Context(), h.Dispatcher, telephony.ProbeKind(in.TestType), params, h.Now)
	if errors.Is(err, telephony.ErrUnknownProbe) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid test type"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "status": "server_error"})
		return
	}

	if h.Audit != nil {
		if err := h.Audit.LogConnectionTest(c.Request.Context(), actorOf(c), in.TestType, res.Status, res.Success, res.Details); err != nil {
			logger.FromGin(c).Warn("audit connection test failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, res)
}

// Statistics reports per-group dispatch outcomes for a test.
func (h Handlers) Statistics(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	testID := strings.TrimSpace(c.Query("testId"))
	if testID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Test ID is required"})
		return
	}
	stats, err := h.Reports.TestStatistics(c.Request.Context(), testID)
	if err != nil {
		logger.FromGin(c).Error("statistics failed", "test_id", testID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to get test statistics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "statistics": stats, "testId": testID})
}

func (h Handlers) logCall(c *gin.Context, req calls.Request, res calls.Result) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.LogCall(c.Request.Context(), actorOf(c), req, res); err != nil {
		logger.FromGin(c).Warn("audit call failed", "err", err)
	}
}

func actorOf(c *gin.Context) audit.Actor {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return audit.Actor{UserID: uid, Role: role, IP: c.ClientIP()}
}

// requestFromItem reads one batch item with the same tolerance as the
// single-call endpoint. An item that is not an object yields an empty
// request, which the dispatcher fails on its own.
func requestFromItem(raw json.RawMessage) calls.Request {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return calls.Request{}
	}
	field := func(k string) string {
		v, _ := stringField(m[k])
		return v
	}
	return calls.Request{
		DestinationNumber: field("destinationNumber"),
		DerivationID:      field("derivationId"),
		OriginNumber:      field("originNumber"),
		Group:             calls.Group(field("group")),
		TestID:            field("testId"),
		LeadID:            field("leadId"),
	}
}

// stringField accepts a non-empty JSON string or number.
func stringField(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
