package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halolight/halolight-api-go/internal/audit"
	"github.com/halolight/halolight-api-go/internal/office"
)

type teamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type teamUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type addMemberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type documentRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Type    string   `json:"type"`
	TeamID  string   `json:"teamId"`
	Tags    []string `json:"tags"`
}

type documentUpdateRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Type    *string `json:"type"`
	TeamID  *string `json:"teamId"`
}

type shareRequest struct {
	UserID     string                 `json:"userId"`
	Permission office.SharePermission `json:"permission"`
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

func (a *API) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.office.ListTeams(r.Context(), identity(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (a *API) getTeam(w http.ResponseWriter, r *http.Request) {
	team, err := a.office.GetTeam(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (a *API) createTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if !bind(w, r, &req) {
		return
	}
	team, err := a.office.CreateTeam(r.Context(), identity(r), office.TeamInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.create", map[string]any{"team_id": team.ID})
	w.Header().Set("Location", fmt.Sprintf("/teams/%s", team.ID))
	writeJSON(w, http.StatusCreated, team)
}

func (a *API) updateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamUpdateRequest
	if !bind(w, r, &req) {
		return
	}
	team, err := a.office.UpdateTeam(r.Context(), identity(r), chi.URLParam(r, "id"), office.TeamUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (a *API) deleteTeam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.office.DeleteTeam(r.Context(), identity(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.delete", map[string]any{"team_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) addTeamMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !bind(w, r, &req) {
		return
	}
	teamID := chi.URLParam(r, "id")
	team, err := a.office.AddMember(r.Context(), identity(r), teamID, req.UserID, req.Role)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.member.add", map[string]any{"team_id": teamID, "target": req.UserID})
	writeJSON(w, http.StatusOK, team)
}

func (a *API) removeTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, userID := chi.URLParam(r, "id"), chi.URLParam(r, "userID")
	if err := a.office.RemoveMember(r.Context(), identity(r), teamID, userID); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.member.remove", map[string]any{"team_id": teamID, "target": userID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	res, err := a.office.ListDocuments(r.Context(), identity(r), office.DocumentQuery{
		Search:   q.Get("search"),
		Type:     q.Get("type"),
		TeamID:   q.Get("teamId"),
		Tag:      q.Get("tag"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := a.office.GetDocument(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) createDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !bind(w, r, &req) {
		return
	}
	doc, err := a.office.CreateDocument(r.Context(), identity(r), office.DocumentInput{
		Title:   req.Title,
		Content: req.Content,
		Type:    req.Type,
		TeamID:  req.TeamID,
		Tags:    req.Tags,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/documents/%s", doc.ID))
	writeJSON(w, http.StatusCreated, doc)
}

func (a *API) updateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentUpdateRequest
	if !bind(w, r, &req) {
		return
	}
	doc, err := a.office.UpdateDocument(r.Context(), identity(r), chi.URLParam(r, "id"), office.DocumentUpdate{
		Title:   req.Title,
		Content: req.Content,
		Type:    req.Type,
		TeamID:  req.TeamID,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.office.DeleteDocument(r.Context(), identity(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "document.delete", map[string]any{"document_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) shareDocument(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if !bind(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	doc, err := a.office.ShareDocument(r.Context(), identity(r), id, req.UserID, req.Permission)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "document.share", map[string]any{
		"document_id": id,
		"target":      req.UserID,
		"permission":  string(req.Permission),
	})
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) unshareDocument(w http.ResponseWriter, r *http.Request) {
	id, userID := chi.URLParam(r, "id"), chi.URLParam(r, "userID")
	if err := a.office.UnshareDocument(r.Context(), identity(r), id, userID); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "document.unshare", map[string]any{"document_id": id, "target": userID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setDocumentTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if !bind(w, r, &req) {
		return
	}
	doc, err := a.office.SetTags(r.Context(), identity(r), chi.URLParam(r, "id"), req.Tags)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	page, size, ok := pageParams(w, r)
	if !ok {
		return
	}
	res, err := a.office.ListNotifications(r.Context(), identity(r), office.NotificationQuery{
		UnreadOnly: queryBool(r, "unread"),
		Page:       page,
		PageSize:   size,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.office.UnreadCount(r.Context(), identity(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (a *API) markRead(w http.ResponseWriter, r *http.Request) {
	if err := a.office.MarkRead(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "notification marked as read"})
}

func (a *API) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := a.office.MarkAllRead(r.Context(), identity(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (a *API) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := a.office.DeleteNotification(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.office.Stats(r.Context(), identity(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
