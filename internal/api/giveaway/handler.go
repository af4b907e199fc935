// Package giveaway provides the REST API binding of the giveaway engine.
// Every engine operation is exposed under /api/v1 and answers with the
// engine Result DTO.
package giveaway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/giveaway-engine/internal/models"
	engine "github.com/aimd54/giveaway-engine/internal/service/giveaway"
	"github.com/aimd54/giveaway-engine/internal/service/leaderboard"
	"github.com/aimd54/giveaway-engine/pkg/logger"
)

// Engine is the subset of the giveaway engine served over HTTP.
type Engine interface {
	Create(ctx context.Context, req engine.CreateRequest) (*engine.Result, error)
	Enter(ctx context.Context, giveawayID, participantID string, facts *models.ParticipantFacts) (*engine.Result, error)
	Leave(ctx context.Context, giveawayID, participantID string) (*engine.Result, error)
	AddEntry(ctx context.Context, giveawayID, participantID string, count int) (*engine.Result, error)
	RemoveEntry(ctx context.Context, giveawayID, participantID string, count int) (*engine.Result, error)
	End(ctx context.Context, giveawayID string, forced bool) (*engine.Result, error)
	Cancel(ctx context.Context, giveawayID, reason string) (*engine.Result, error)
	Reroll(ctx context.Context, giveawayID string, count int) (*engine.Result, error)
	Edit(ctx context.Context, giveawayID string, patch engine.EditRequest) (*engine.Result, error)
	UpdateRequirements(ctx context.Context, giveawayID string, req models.Requirements) (*engine.Result, error)
	UpdateBonusEntries(ctx context.Context, giveawayID string, bonus models.BonusEntries) (*engine.Result, error)
	UpdateAccessLists(ctx context.Context, giveawayID string, blacklist, whitelist []string) (*engine.Result, error)
	Extend(ctx context.Context, giveawayID string, extra time.Duration) (*engine.Result, error)
	SetMessageReference(ctx context.Context, giveawayID, messageID string) (*engine.Result, error)
	ClaimPrize(ctx context.Context, giveawayID, participantID string) (*engine.Result, error)
	Get(ctx context.Context, giveawayID string) (*models.Giveaway, error)
	ListActive(ctx context.Context, guildID string) ([]models.Giveaway, error)
	Entries(ctx context.Context, giveawayID string) ([]models.Entry, error)
	ParticipantCount(ctx context.Context, giveawayID string) (int, error)
	Winners(ctx context.Context, giveawayID string, includeRerolled bool) ([]models.Winner, error)
}

// Leaderboard serves guild rankings.
type Leaderboard interface {
	GetGuildLeaderboard(ctx context.Context, guildID, period, metric string, limit int) ([]leaderboard.Entry, error)
	GetParticipantStats(ctx context.Context, guildID, participantID, period string) (*leaderboard.ParticipantStats, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Handler handles giveaway API requests.
type Handler struct {
	engine      Engine
	leaderboard Leaderboard
	checks      map[string]HealthCheck
	log         *logger.Logger
}

// NewHandler creates a new giveaway handler. checks are probed by /health.
func NewHandler(e Engine, lb Leaderboard, checks map[string]HealthCheck, log *logger.Logger) *Handler {
	return &Handler{
		engine:      e,
		leaderboard: lb,
		checks:      checks,
		log:         log,
	}
}

// Register mounts the API routes under /api/v1.
func (h *Handler) Register(router gin.IRouter) {
	api := router.Group("/api/v1")

	api.POST("/giveaways", h.CreateGiveaway)
	api.GET("/giveaways", h.ListActive)
	api.GET("/giveaways/:id", h.GetGiveaway)
	api.PATCH("/giveaways/:id", h.EditGiveaway)
	api.PUT("/giveaways/:id/requirements", h.UpdateRequirements)
	api.PUT("/giveaways/:id/bonus-entries", h.UpdateBonusEntries)
	api.PUT("/giveaways/:id/access-lists", h.UpdateAccessLists)
	api.PUT("/giveaways/:id/message", h.SetMessageReference)
	api.POST("/giveaways/:id/extend", h.Extend)
	api.POST("/giveaways/:id/end", h.End)
	api.POST("/giveaways/:id/cancel", h.Cancel)
	api.POST("/giveaways/:id/reroll", h.Reroll)

	api.GET("/giveaways/:id/entries", h.ListEntries)
	api.POST("/giveaways/:id/entries", h.Enter)
	api.DELETE("/giveaways/:id/entries/:participant", h.Leave)
	api.POST("/giveaways/:id/entries/:participant/add", h.AddEntry)
	api.POST("/giveaways/:id/entries/:participant/remove", h.RemoveEntry)

	api.GET("/giveaways/:id/winners", h.ListWinners)
	api.POST("/giveaways/:id/winners/:participant/claim", h.ClaimPrize)

	api.GET("/guilds/:guild/leaderboard", h.GetGuildLeaderboard)
	api.GET("/guilds/:guild/participants/:participant/stats", h.GetParticipantStats)

	router.GET("/health", h.Health)
}

// CreateGiveaway creates a giveaway.
// POST /api/v1/giveaways.
func (h *Handler) CreateGiveaway(c *gin.Context) {
	var body createRequest
	if !h.bind(c, &body) {
		return
	}

	req, err := body.toEngine()
	if err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.engine.Create(c.Request.Context(), req)
	h.respond(c, http.StatusCreated, res, err)
}

// ListActive returns the active giveaways, optionally filtered by guild.
// GET /api/v1/giveaways?guild_id=123.
func (h *Handler) ListActive(c *gin.Context) {
	guildID := c.Query("guild_id")

	giveaways, err := h.engine.ListActive(c.Request.Context(), guildID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"giveaways":    giveaways,
		"total":        len(giveaways),
		"generated_at": time.Now().UTC(),
	})
}

// GetGiveaway returns one giveaway.
// GET /api/v1/giveaways/:id.
func (h *Handler) GetGiveaway(c *gin.Context) {
	ctx := c.Request.Context()
	g, err := h.engine.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	n, err := h.engine.ParticipantCount(ctx, g.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"giveaway": g, "participants": n})
}

// EditGiveaway patches presentation fields and the winner count.
// PATCH /api/v1/giveaways/:id.
func (h *Handler) EditGiveaway(c *gin.Context) {
	var body editRequest
	if !h.bind(c, &body) {
		return
	}

	res, err := h.engine.Edit(c.Request.Context(), c.Param("id"), engine.EditRequest{
		Title:       body.Title,
		Description: body.Description,
		Prize:       body.Prize,
		WinnerCount: body.WinnerCount,
	})
	h.respond(c, http.StatusOK, res, err)
}

// UpdateRequirements replaces the eligibility requirements.
// PUT /api/v1/giveaways/:id/requirements.
func (h *Handler) UpdateRequirements(c *gin.Context) {
	var body requirementsRequest
	if !h.bind(c, &body) {
		return
	}

	req, err := body.toModel()
	if err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.engine.UpdateRequirements(c.Request.Context(), c.Param("id"), req)
	h.respond(c, http.StatusOK, res, err)
}

// UpdateBonusEntries replaces the bonus rules.
// PUT /api/v1/giveaways/:id/bonus-entries.
func (h *Handler) UpdateBonusEntries(c *gin.Context) {
	var body models.BonusEntries
	if !h.bind(c, &body) {
		return
	}

	res, err := h.engine.UpdateBonusEntries(c.Request.Context(), c.Param("id"), body)
	h.respond(c, http.StatusOK, res, err)
}

// UpdateAccessLists replaces the blacklist and whitelist.
// PUT /api/v1/giveaways/:id/access-lists.
func (h *Handler) UpdateAccessLists(c *gin.Context) {
	var body accessListsRequest
	if !h.bind(c, &body) {
		return
	}

	res, err := h.engine.UpdateAccessLists(c.Request.Context(), c.Param("id"), body.Blacklist, body.Whitelist)
	h.respond(c, http.StatusOK, res, err)
}

// SetMessageReference records the announcement message.
// PUT /api/v1/giveaways/:id/message.
func (h *Handler) SetMessageReference(c *gin.Context) {
	var body messageRequest
	if !h.bind(c, &body) {
		return
	}

	res, err := h.engine.SetMessageReference(c.Request.Context(), c.Param("id"), body.MessageID)
	h.respond(c, http.StatusOK, res, err)
}

// Extend pushes the end time forward.
// POST /api/v1/giveaways/:id/extend.
func (h *Handler) Extend(c *gin.Context) {
	var body extendRequest
	if !h.bind(c, &body) {
		return
	}

	extra, err := time.ParseDuration(body.Duration)
	if err != nil {
		h.badRequest(c, errors.New("duration must be a Go duration such as 90m or 24h"))
		return
	}

	res, err := h.engine.Extend(c.Request.Context(), c.Param("id"), extra)
	h.respond(c, http.StatusOK, res, err)
}

// End ends a giveaway now and draws its winners.
// POST /api/v1/giveaways/:id/end.
func (h *Handler) End(c *gin.Context) {
	res, err := h.engine.End(c.Request.Context(), c.Param("id"), true)
	h.respond(c, http.StatusOK, res, err)
}

// Cancel cancels a giveaway.
// POST /api/v1/giveaways/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	var body cancelRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &body) {
		return
	}

	res, err := h.engine.Cancel(c.Request.Context(), c.Param("id"), body.Reason)
	h.respond(c, http.StatusOK, res, err)
}

// Reroll draws replacement winners.
// POST /api/v1/giveaways/:id/reroll.
func (h *Handler) Reroll(c *gin.Context) {
	body := countRequest{Count: 1}
	if c.Request.ContentLength > 0 && !h.bind(c, &body) {
		return
	}

	res, err := h.engine.Reroll(c.Request.Context(), c.Param("id"), body.Count)
	h.respond(c, http.StatusOK, res, err)
}

// ListEntries returns the entries of a giveaway.
// GET /api/v1/giveaways/:id/entries.
func (h *Handler) ListEntries(c *gin.Context) {
	entries, err := h.engine.Entries(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	tickets := 0
	for _, e := range entries {
		tickets += e.EntryCount
	}

	c.JSON(http.StatusOK, gin.H{
		"giveaway_id":   c.Param("id"),
		"entries":       entries,
		"participants":  len(entries),
		"total_tickets": tickets,
	})
}

// Enter registers a participant. Facts are optional; when omitted the
// configured fact provider is consulted.
// POST /api/v1/giveaways/:id/entries.
func (h *Handler) Enter(c *gin.Context) {
	var body enterRequest
	if !h.bind(c, &body) {
		return
	}

	res, err := h.engine.Enter(c.Request.Context(), c.Param("id"), body.ParticipantID, body.Facts)
	h.respond(c, http.StatusCreated, res, err)
}

// Leave removes a participant's entry.
// DELETE /api/v1/giveaways/:id/entries/:participant.
func (h *Handler) Leave(c *gin.Context) {
	res, err := h.engine.Leave(c.Request.Context(), c.Param("id"), c.Param("participant"))
	h.respond(c, http.StatusOK, res, err)
}

// AddEntry grants extra tickets.
// POST /api/v1/giveaways/:id/entries/:participant/add.
func (h *Handler) AddEntry(c *gin.Context) {
	var body countRequest
	if !h.bind(c, &body) {
		return
	}

	res, err := h.engine.AddEntry(c.Request.Context(), c.Param("id"), c.Param("participant"), body.Count)
	h.respond(c, http.StatusOK, res, err)
}

// RemoveEntry takes tickets away; a count of 0 removes the entry.
// POST /api/v1/giveaways/:id/entries/:participant/remove.
func (h *Handler) RemoveEntry(c *gin.Context) {
	var body countRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &body) {
		return
	}

	res, err := h.engine.RemoveEntry(c.Request.Context(), c.Param("id"), c.Param("participant"), body.Count)
	h.respond(c, http.StatusOK, res, err)
}

// ListWinners returns the winners of a giveaway.
// GET /api/v1/giveaways/:id/winners?include_rerolled=true.
func (h *Handler) ListWinners(c *gin.Context) {
	includeRerolled := false
	if raw := c.Query("include_rerolled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.badRequest(c, errors.New("include_rerolled must be a boolean"))
			return
		}
		includeRerolled = v
	}

	winners, err := h.engine.Winners(c.Request.Context(), c.Param("id"), includeRerolled)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"giveaway_id": c.Param("id"),
		"winners":     winners,
	})
}

// ClaimPrize marks a winner's prize as claimed.
// POST /api/v1/giveaways/:id/winners/:participant/claim.
func (h *Handler) ClaimPrize(c *gin.Context) {
	res, err := h.engine.ClaimPrize(c.Request.Context(), c.Param("id"), c.Param("participant"))
	h.respond(c, http.StatusOK, res, err)
}

// Health probes every registered dependency.
// GET /health.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status": overall,
		"checks": results,
	})
}

// Helper functions

func (h *Handler) bind(c *gin.Context, body interface{}) bool {
	if err := c.ShouldBindJSON(body); err != nil {
		h.badRequest(c, errors.New("invalid request body"))
		return false
	}
	return true
}

func (h *Handler) respond(c *gin.Context, status int, res *engine.Result, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, response{Result: res})
}

// fail renders an engine error. Causes of store failures are logged, never returned.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("Giveaway request failed")
	}

	c.JSON(status, response{
		Result: engine.Failure(err),
		Error:  string(engine.KindOf(err)),
	})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response{
		Result: &engine.Result{Success: false, Message: err.Error()},
		Error:  string(engine.KindInvalidInput),
	})
}

func statusFor(err error) int {
	switch engine.KindOf(err) {
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindAlreadyEnded, engine.KindAlreadyCancelled, engine.KindAlreadyEntered, engine.KindNotYetEnded:
		return http.StatusConflict
	case engine.KindNotEligible:
		return http.StatusForbidden
	case engine.KindInvalidDuration, engine.KindInvalidWinnerCount, engine.KindInvalidInput:
		return http.StatusBadRequest
	case engine.KindNoEligibleParticipants:
		return http.StatusUnprocessableEntity
	case engine.KindRateLimited:
		return http.StatusTooManyRequests
	case engine.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
