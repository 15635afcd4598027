package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nikhil/taskhub/internal/blob"
	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/membership"
	"github.com/nikhil/taskhub/internal/middleware"
	"github.com/nikhil/taskhub/internal/models"
)

// TeamService is the team lifecycle and moderation API.
type TeamService interface {
	Create(ctx context.Context, creatorID int64, name string) (models.Team, error)
	Get(ctx context.Context, teamID, userID int64) (models.Team, error)
	Delete(ctx context.Context, teamID, userID int64) error
	Join(ctx context.Context, teamID, userID int64) (models.TeamMember, error)
	Quit(ctx context.Context, teamID, userID int64) (models.Succession, error)
	Kick(ctx context.Context, teamID, actorID, targetID int64) (models.Succession, error)
	IsLeader(ctx context.Context, teamID, userID int64) (bool, error)
}

// MessageHistory serves catch-up reads of team chat.
type MessageHistory interface {
	History(ctx context.Context, teamID, userID int64) ([]models.TeamMessage, error)
}

// MemberAuthorizer checks team membership.
type MemberAuthorizer interface {
	AuthorizeMember(ctx context.Context, teamID, userID int64) (membership.Decision, error)
}

// TeamHandler serves the /api/teams routes.
type TeamHandler struct {
	teams    TeamService
	history  MessageHistory
	auth     MemberAuthorizer
	blobs    blob.Store
	maxBytes int64
	Log      *logger.Logger
}

// NewTeamHandler creates the handler. blobs may be nil, which disables
// attachment uploads.
func NewTeamHandler(teams TeamService, history MessageHistory, auth MemberAuthorizer, blobs blob.Store, maxBytes int64, log *logger.Logger) *TeamHandler {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &TeamHandler{teams: teams, history: history, auth: auth, blobs: blobs, maxBytes: maxBytes, Log: log}
}

type createTeamRequest struct {
	Name string `json:"name"`
}

type kickRequest struct {
	UserID models.FlexID `json:"user_id"`
}

// request resolves the caller and, when withTeam is set, the team_id path
// parameter. It writes the error response itself.
func (th *TeamHandler) request(w http.ResponseWriter, r *http.Request, withTeam bool) (models.Identity, int64, bool) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		th.Log.Error("Failed to extract user details from context")
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return models.Identity{}, 0, false
	}
	if !withTeam {
		return identity, 0, true
	}
	teamID, err := pathID(r, "team_id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid team ID")
		return models.Identity{}, 0, false
	}
	return identity, teamID, true
}

// CreateTeam handles POST /api/teams.
func (th *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	identity, _, ok := th.request(w, r, false)
	if !ok {
		return
	}
	var req createTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	t, err := th.teams.Create(r.Context(), identity.UserID, req.Name)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, t)
}

// GetTeam handles GET /api/teams/{team_id}.
func (th *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	identity, teamID, ok := th.request(w, r, true)
	if !ok {
		return
	}
	t, err := th.teams.Get(r.Context(), teamID, identity.UserID)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, t)
}

// DeleteTeam handles DELETE /api/teams/{team_id}.
func (th *TeamHandler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	identity, teamID, ok := th.request(w, r, true)
	if !ok {
		return
	}
	if err := th.teams.Delete(r.Context(), teamID, identity.UserID); err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Team deleted"})
}

// JoinTeam handles POST /api/teams/{team_id}/join.
func (th *TeamHandler) JoinTeam(w http.ResponseWriter, r *http.Request) {
	identity, teamID, ok := th.request(w, r, true)
	if !ok {
		return
	}
	m, err := th.teams.Join(r.Context(), teamID, identity.UserID)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, m)
}

// QuitTeam handles POST /api/teams/{team_id}/quit.
func (th *TeamHandler) QuitTeam(w http.ResponseWriter, r *http.Request) {
	identity, teamID, ok := th.request(w, r, true)
	if !ok {
		return
	}
	s, err := th.teams.Quit(r.Context(), teamID, identity.UserID)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, s)
}

// KickMember handles POST /api/teams/{team_id}/kick.
func (th *TeamHandler) KickMember(w http.ResponseWriter, r *http.Request) {
	identity, teamID, ok := th.request(w, r, true)
	if !ok {
		return
	}
	var req kickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s, err := th.teams.Kick(r.Context(), teamID, identity.UserID, req.UserID.Int64())
	if errors.Is(err, models.ErrNotMember) {
		respondWithError(w, http.StatusNotFound, "User is not a member of this team")
		return
	}
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, s)
}

// IsLeader handles GET /api/teams/{team_id}/is-leader.
func (th *TeamHandler) IsLeader(w http.ResponseWriter, r *http.Request) {
	identity, teamID, ok := th.request(w, r, true)
	if !ok {
		return
	}
	leader, err := th.teams.IsLeader(r.Context(), teamID, identity.UserID)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"is_leader": leader})
}

// GetMessages handles GET /api/teams/{team_id}/messages.
func (th *TeamHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	identity, teamID, ok := th.request(w, r, true)
	if !ok {
		return
	}
	messages, err := th.history.History(r.Context(), teamID, identity.UserID)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, messages)
}

// UploadAttachment handles POST /api/teams/{team_id}/chat-attachments. The
// multipart field is "file".
func (th *TeamHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	identity, teamID, ok := th.request(w, r, true)
	if !ok {
		return
	}
	if th.blobs == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Attachments are not configured")
		return
	}

	d, err := th.auth.AuthorizeMember(r.Context(), teamID, identity.UserID)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	if d == membership.Denied {
		respondWithErr(w, models.ErrNotMember)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, th.maxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "Missing file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := th.blobs.Put(r.Context(), blob.AttachmentKey(teamID, header.Filename), file, header.Size, contentType)
	if err != nil {
		th.Log.Error("Failed to store attachment", "error", err, "team_id", teamID, "user_id", identity.UserID)
		respondWithError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]string{"url": url})
}
