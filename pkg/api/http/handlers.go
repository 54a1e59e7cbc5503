package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
)

// AnswerRequest represents an answer submission request
type AnswerRequest struct {
	Query           string                     `json:"query" binding:"required"`
	SessionID       string                     `json:"session_id"`
	TurnID          string                     `json:"turn_id"`
	TraceID         string                     `json:"trace_id"`
	DocScope        []string                   `json:"doc_scope"`
	Stage1Result    map[string]interface{}     `json:"stage1_result"`
	Stage2Result    map[string]interface{}     `json:"stage2_result"`
	Options         map[string]interface{}     `json:"options"`
	SelectedContext []contracts.ContextSnippet `json:"selected_context"`
}

// AnswerResponse represents an answer response
type AnswerResponse struct {
	TraceID    string                     `json:"trace_id"`
	SessionID  string                     `json:"session_id"`
	TurnID     string                     `json:"turn_id"`
	Result     *contracts.ExecutionResult `json:"result"`
	AnsweredAt string                     `json:"answered_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := s.health.GetStatus()

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// handleAnswer handles answer submission
func (s *Server) handleAnswer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.TurnID == "" {
		req.TurnID = uuid.NewString()
	}

	planReq := &contracts.PlanRequest{
		Query:        req.Query,
		SessionID:    req.SessionID,
		TurnID:       req.TurnID,
		TraceID:      req.TraceID,
		DocScope:     req.DocScope,
		Stage1Result: req.Stage1Result,
		Stage2Result: req.Stage2Result,
		Options:      req.Options,
	}

	result, err := s.engine.Answer(c.Request.Context(), planReq, req.SelectedContext)
	if err != nil {
		s.logger.Error("answer run failed", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "RUN_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, AnswerResponse{
		TraceID:    planReq.TraceID,
		SessionID:  req.SessionID,
		TurnID:     req.TurnID,
		Result:     result,
		AnsweredAt: time.Now().Format(time.RFC3339),
	})
}

// handleListRuns handles listing a session's runs
func (s *Server) handleListRuns(c *gin.Context) {
	sessionID := c.Param("id")

	runs, err := s.store.ListRuns(c.Request.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to list runs",
			zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORE_ERROR",
				Message: "Failed to retrieve runs",
				Details: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"runs":       runs,
		"total":      len(runs),
	})
}

// handleGetRun handles getting a single turn run
func (s *Server) handleGetRun(c *gin.Context) {
	sessionID := c.Param("id")
	turnID := c.Param("turn")

	run, err := s.store.GetRun(c.Request.Context(), sessionID, turnID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Run not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, run)
}

// handleDeleteSession handles deleting a session's runs
func (s *Server) handleDeleteSession(c *gin.Context) {
	sessionID := c.Param("id")

	if err := s.store.DeleteSession(c.Request.Context(), sessionID); err != nil {
		s.logger.Error("failed to delete session",
			zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORE_ERROR",
				Message: "Failed to delete session",
				Details: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"status":     "deleted",
	})
}

// handleListWorkers handles listing registered workers
func (s *Server) handleListWorkers(c *gin.Context) {
	snap := s.engine.Registry().Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"data":      snap,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
