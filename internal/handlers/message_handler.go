package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/classpage/backend/internal/cache"
	"github.com/classpage/backend/internal/repository"
)

// MessageHandler serves the HTTP side-channel clients hit on page load to
// seed their message history before consuming the socket stream.
type MessageHandler struct {
	msgRepo      *repository.MessageRepository
	redis        *cache.RedisClient
	defaultLimit int
	cacheTTL     time.Duration
	log          zerolog.Logger
}

// NewMessageHandler creates a message handler. redis may be nil; caching is
// then skipped and every request hits the database.
func NewMessageHandler(
	msgRepo *repository.MessageRepository,
	redis *cache.RedisClient,
	defaultLimit int,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *MessageHandler {
	return &MessageHandler{
		msgRepo:      msgRepo,
		redis:        redis,
		defaultLimit: defaultLimit,
		cacheTTL:     cacheTTL,
		log:          log,
	}
}

// parseLimit validates the limit query parameter and clamps it to the
// repository maximum. Clamping happens here, before the Redis lookup, so
// oversized limits share one cache key instead of minting a distinct entry
// per requested value.
func parseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if n > repository.MaxHistoryLimit {
		n = repository.MaxHistoryLimit
	}
	return n, nil
}

// GetMessages returns persisted, non-deleted messages, oldest first.
// GET /api/chat/messages?limit=N
func (h *MessageHandler) GetMessages(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), h.defaultLimit)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	if h.redis != nil {
		cached, err := h.redis.GetHistory(limit)
		if err != nil {
			h.log.Warn().Err(err).Msg("history cache read failed")
		} else if cached != nil {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	messages, err := h.msgRepo.ListRecent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list messages")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get messages")
		return
	}

	if h.redis != nil {
		if err := h.redis.SetHistory(limit, messages, h.cacheTTL); err != nil {
			h.log.Warn().Err(err).Msg("history cache write failed")
		}
	}

	c.JSON(http.StatusOK, messages)
}
