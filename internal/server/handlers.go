package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/higherself-ai/higherself/internal/llm/provider"
)

// maxMessageLength bounds the user message at the boundary.
const maxMessageLength = 4000

// historyEntry is one prior conversation message supplied by the client.
type historyEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// sendRequest is the /api/chat/send request body. MessageHistory is
// decoded in a second step so a non-array value gets its own error
// code instead of a generic bind failure.
type sendRequest struct {
	Message        string          `json:"message"`
	ConversationID string          `json:"conversationId"`
	MessageHistory json.RawMessage `json:"messageHistory"`
}

// sendData is the success payload.
type sendData struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	Timestamp      string `json:"timestamp"`
}

func successResponse(data sendData) gin.H {
	return gin.H{"success": true, "data": data}
}

func errorResponse(message, code string) gin.H {
	return gin.H{"success": false, "error": message, "code": code}
}

// handleChatSend validates the request, composes provider input, and
// relays the completion.
func (s *Server) handleChatSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Please provide a valid message", "INVALID_MESSAGE"))
		return
	}

	entries, status, msg, code := validateSend(&req)
	if code != "" {
		c.JSON(status, errorResponse(msg, code))
		return
	}

	history := make([]provider.Message, len(entries))
	for i, h := range entries {
		history[i] = provider.Message{Role: h.Role, Content: h.Content}
	}

	messages := s.opts.Composer.Compose(req.Message, history)

	text, err := s.opts.Completer.Complete(c.Request.Context(), messages)
	if err != nil {
		status, msg, code := mapProviderError(err)
		c.JSON(status, errorResponse(msg, code))
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	c.JSON(http.StatusOK, successResponse(sendData{
		Message:        text,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}))
}

// validateSend enforces the boundary rules and decodes the history. A
// non-empty returned code signals rejection. The length bound counts
// characters, not bytes.
func validateSend(req *sendRequest) ([]historyEntry, int, string, string) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, http.StatusBadRequest, "Please provide a valid message", "INVALID_MESSAGE"
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLength {
		return nil, http.StatusBadRequest,
			"Message exceeds maximum length of 4000 characters", "MESSAGE_TOO_LONG"
	}

	if len(req.MessageHistory) == 0 || bytes.Equal(req.MessageHistory, []byte("null")) {
		return nil, 0, "", ""
	}

	var rawEntries []json.RawMessage
	if err := json.Unmarshal(req.MessageHistory, &rawEntries); err != nil {
		return nil, http.StatusBadRequest,
			"Message history must be an array", "INVALID_MESSAGE_HISTORY"
	}

	entries := make([]historyEntry, 0, len(rawEntries))
	for _, raw := range rawEntries {
		var h historyEntry
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, http.StatusBadRequest,
				"Invalid message in history. Each message must have role and content properties",
				"INVALID_MESSAGE_FORMAT"
		}
		switch h.Role {
		case "user", "assistant", "system":
		default:
			return nil, http.StatusBadRequest,
				"Invalid message in history. Each message must have role and content properties",
				"INVALID_MESSAGE_FORMAT"
		}
		if h.Content == "" {
			return nil, http.StatusBadRequest,
				"Invalid message in history. Each message must have role and content properties",
				"INVALID_MESSAGE_FORMAT"
		}
		entries = append(entries, h)
	}
	return entries, 0, "", ""
}

// mapProviderError translates classified provider errors to HTTP
// responses. Raw provider payloads are never relayed.
func mapProviderError(err error) (int, string, string) {
	var pe *provider.ProviderError
	if !errors.As(err, &pe) {
		log.Printf("chat send failed: %v", err)
		return http.StatusInternalServerError, "Internal Server Error", "SERVER_ERROR"
	}

	log.Printf("chat send failed: code=%s status=%d: %v", pe.Code, pe.StatusCode, pe)

	switch pe.Code {
	case provider.ErrorCodeRateLimit:
		return http.StatusTooManyRequests,
			"The AI service is experiencing high demand. Please try again shortly.", "OPENAI_ERROR"
	case provider.ErrorCodeAuthentication:
		return http.StatusBadGateway,
			"The AI service is not configured correctly.", "OPENAI_ERROR"
	case provider.ErrorCodeServerError, provider.ErrorCodeMalformedResponse:
		return http.StatusBadGateway,
			"The AI service is having technical difficulties. Please try again later.", "OPENAI_ERROR"
	case provider.ErrorCodeTimeout:
		return http.StatusServiceUnavailable,
			"The AI service took too long to respond. Please try again.", "SERVICE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError,
			"Failed to get response from AI service", "SERVER_ERROR"
	}
}

// handleHealth reports liveness plus any registered checks.
func (s *Server) handleHealth(c *gin.Context) {
	if s.opts.Health != nil {
		resp := s.opts.Health.Check(c.Request.Context())
		if resp.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": resp.Checks})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Server is running"})
}
