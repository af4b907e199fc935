package giveaway

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GetGuildLeaderboard returns the leaderboard of a guild.
// GET /api/v1/guilds/:guild/leaderboard?period=month&metric=wins&limit=10.
func (h *Handler) GetGuildLeaderboard(c *gin.Context) {
	guildID := c.Param("guild")
	period := c.DefaultQuery("period", "all_time")
	metric := c.DefaultQuery("metric", "wins")
	limit, err := parseLimit(c, 10)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := validatePeriod(period); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateMetric(metric); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboard.GetGuildLeaderboard(c.Request.Context(), guildID, period, metric, limit)
	if err != nil {
		h.log.Error().Err(err).Str("guild_id", guildID).Msg("Failed to get guild leaderboard")
		errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"guild_id":      guildID,
		"leaderboard":   entries,
		"period":        period,
		"metric":        metric,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetParticipantStats returns one participant's stats and rank in a guild.
// GET /api/v1/guilds/:guild/participants/:participant/stats?period=month.
func (h *Handler) GetParticipantStats(c *gin.Context) {
	guildID := c.Param("guild")
	participantID := c.Param("participant")
	period := c.DefaultQuery("period", "all_time")

	if err := validatePeriod(period); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.leaderboard.GetParticipantStats(c.Request.Context(), guildID, participantID, period)
	if err != nil {
		h.log.Error().
			Err(err).
			Str("guild_id", guildID).
			Str("participant_id", participantID).
			Msg("Failed to get participant stats")
		errorResponse(c, http.StatusInternalServerError, "Failed to retrieve participant stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}
	if limit > 1000 {
		return 0, fmt.Errorf("limit cannot exceed 1000")
	}
	return limit, nil
}

func validatePeriod(period string) error {
	switch period {
	case "day", "week", "month", "year", "all_time":
		return nil
	}
	return fmt.Errorf("invalid period: %s (valid: day, week, month, year, all_time)", period)
}

func validateMetric(metric string) error {
	switch metric {
	case "wins", "giveaways", "tickets":
		return nil
	}
	return fmt.Errorf("invalid metric: %s (valid: wins, giveaways, tickets)", metric)
}

// errorResponse sends a plain error for the stats endpoints, which carry no engine Result.
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
