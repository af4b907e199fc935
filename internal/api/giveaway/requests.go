package giveaway

import (
	"fmt"
	"time"

	"github.com/aimd54/giveaway-engine/internal/models"
	engine "github.com/aimd54/giveaway-engine/internal/service/giveaway"
)

// response is the Result DTO plus the error kind of a failed operation.
type response struct {
	*engine.Result
	Error string `json:"error,omitempty"`
}

// requirementsRequest mirrors models.Requirements with human-readable durations.
type requirementsRequest struct {
	MinLevel      int      `json:"min_level"`
	RequiredRoles []string `json:"required_roles"`
	MinAccountAge string   `json:"min_account_age"`
	MinMemberAge  string   `json:"min_member_age"`
	RequireVoice  bool     `json:"require_voice"`
}

func (r *requirementsRequest) toModel() (models.Requirements, error) {
	accountAge, err := parseOptionalDuration("min_account_age", r.MinAccountAge)
	if err != nil {
		return models.Requirements{}, err
	}
	memberAge, err := parseOptionalDuration("min_member_age", r.MinMemberAge)
	if err != nil {
		return models.Requirements{}, err
	}

	return models.Requirements{
		MinLevel:      r.MinLevel,
		RequiredRoles: r.RequiredRoles,
		MinAccountAge: accountAge,
		MinMemberAge:  memberAge,
		RequireVoice:  r.RequireVoice,
	}, nil
}

type createRequest struct {
	HostID       string               `json:"host_id"`
	GuildID      string               `json:"guild_id"`
	ChannelID    string               `json:"channel_id"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	Prize        string               `json:"prize"`
	Duration     string               `json:"duration"`
	WinnerCount  int                  `json:"winner_count"`
	Requirements *requirementsRequest `json:"requirements"`
	BonusEntries *models.BonusEntries `json:"bonus_entries"`
	Blacklist    []string             `json:"blacklist"`
	Whitelist    []string             `json:"whitelist"`
}

func (r *createRequest) toEngine() (engine.CreateRequest, error) {
	duration, err := time.ParseDuration(r.Duration)
	if err != nil {
		return engine.CreateRequest{}, fmt.Errorf("duration must be a Go duration such as 90m or 24h")
	}

	req := engine.CreateRequest{
		HostID:       r.HostID,
		GuildID:      r.GuildID,
		ChannelID:    r.ChannelID,
		Title:        r.Title,
		Description:  r.Description,
		Prize:        r.Prize,
		Duration:     duration,
		WinnerCount:  r.WinnerCount,
		BonusEntries: r.BonusEntries,
		Blacklist:    r.Blacklist,
		Whitelist:    r.Whitelist,
	}
	if r.Requirements != nil {
		requirements, err := r.Requirements.toModel()
		if err != nil {
			return engine.CreateRequest{}, err
		}
		req.Requirements = &requirements
	}
	return req, nil
}

type editRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Prize       *string `json:"prize"`
	WinnerCount *int    `json:"winner_count"`
}

type enterRequest struct {
	ParticipantID string                   `json:"participant_id" binding:"required"`
	Facts         *models.ParticipantFacts `json:"facts"`
}

type accessListsRequest struct {
	Blacklist []string `json:"blacklist"`
	Whitelist []string `json:"whitelist"`
}

type messageRequest struct {
	MessageID string `json:"message_id"`
}

type extendRequest struct {
	Duration string `json:"duration"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type countRequest struct {
	Count int `json:"count"`
}

func parseOptionalDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a Go duration such as 720h", field)
	}
	return d, nil
}
