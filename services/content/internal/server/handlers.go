package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"inspirestack/internal/servicetoken"
	"inspirestack/internal/usertoken"
	"inspirestack/internal/util"
	"inspirestack/pkg/domain"
	"inspirestack/pkg/preview"
	"inspirestack/services/content/internal/app"
)

const maxBodyBytes = 1 << 20

type feedResponse struct {
	Posts  []domain.FeedItem  `json:"posts"`
	Counts *domain.TypeCounts `json:"counts,omitempty"`
}

type voteRequest struct {
	ContentType string `json:"contentType"`
	VoteType    string `json:"voteType"`
}

type commentRequest struct {
	Comment  string `json:"comment"`
	PostType string `json:"postType"`
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "route not found")
}

// feed
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := s.app.Feed(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{Posts: feed.Items, Counts: feed.Counts})
}

func (s *Server) handleFilteredFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	feed, err := s.app.FilteredFeed(r.Context(), app.FeedQuery{
		Type:     q.Get("type"),
		Category: q.Get("category"),
		Page:     q.Get("page"),
		Limit:    q.Get("limit"),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{Posts: feed.Items, Counts: feed.Counts})
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	ref, err := app.ParseRef(r.PathValue("type"), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	item, err := s.app.Item(r.Context(), ref)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": item})
}

func (s *Server) handleItemComments(w http.ResponseWriter, r *http.Request) {
	ref, err := app.ParseRef(r.PathValue("type"), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	comments, err := s.app.Comments(r.Context(), ref)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (s *Server) handleItemTags(w http.ResponseWriter, r *http.Request) {
	ref, err := app.ParseRef(r.PathValue("type"), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	tags, err := s.app.Tags(r.Context(), ref)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *Server) handleContentTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": s.app.ContentTypes()})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.app.ListCategories(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, err := s.app.Preview(r.Context(), r.URL.Query().Get("url"))
	if errors.Is(err, preview.ErrFetch) {
		util.LoggerFromContext(r.Context()).Warn("preview fetch failed", "err", err)
		writeError(w, http.StatusBadGateway, "failed to fetch preview")
		return
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// votes
func (s *Server) handleVote(w http.ResponseWriter, r *http.Request, user usertoken.Identity) {
	var req voteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ref, err := app.ParseRef(req.ContentType, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	roster, err := s.app.Vote(r.Context(), user.UserID, ref, req.VoteType)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

// content
func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request, user usertoken.Identity) {
	var req app.ContentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := s.app.CreateContent(r.Context(), user.UserID, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       item.ID,
		"type":     item.Type(),
		"category": s.app.CategoryName(item.CategoryID),
		"message":  "Content created successfully",
	})
}

func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request, user usertoken.Identity) {
	id, ok := pathID(w, r, "id", app.ErrInvalidContentID)
	if !ok {
		return
	}
	var req app.ContentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ref, err := s.app.UpdateContent(r.Context(), user.UserID, id, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": string(ref.Type) + " content updated successfully"})
}

func (s *Server) handleDeleteContent(w http.ResponseWriter, r *http.Request, user usertoken.Identity) {
	ref, err := app.ParseRef(r.URL.Query().Get("contentType"), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.app.DeleteContent(r.Context(), user.UserID, ref); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Content deleted successfully"})
}

// comments
func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request, user usertoken.Identity) {
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ref, err := app.ParseRef(req.PostType, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	comment, err := s.app.AddComment(r.Context(), user.UserID, ref, req.Comment)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"comment": comment, "message": "Comment added successfully"})
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request, user usertoken.Identity) {
	postID, ok := pathID(w, r, "id", app.ErrInvalidContentID)
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "commentId", app.ErrInvalidCommentID)
	if !ok {
		return
	}
	if err := s.app.DeleteComment(r.Context(), user.UserID, postID, commentID); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Comment deleted successfully"})
}

// internal
func (s *Server) handleRefreshCategories(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.RefreshCategories(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	util.LoggerFromContext(r.Context()).Info("categories refreshed",
		"caller", servicetoken.CallerFromContext(r.Context()), "count", n)
	writeJSON(w, http.StatusOK, map[string]int{"categories": n})
}

func pathID(w http.ResponseWriter, r *http.Request, name string, invalid error) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue(name)), 10, 64)
	if err != nil || id <= 0 {
		writeAppError(w, r, invalid)
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeAppError maps error kinds onto status codes. Only kind-wrapped
// messages are shown to clients; anything else is logged and hidden.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range []struct {
		kind   error
		status int
	}{
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrConflict, http.StatusConflict},
	} {
		if errors.Is(err, m.kind) {
			writeError(w, m.status, publicMessage(err, m.kind))
			return
		}
	}
	util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// publicMessage strips the kind prefix added by fmt.Errorf("%w: ...").
func publicMessage(err, kind error) string {
	msg := err.Error()
	if i := strings.Index(msg, kind.Error()+": "); i >= 0 {
		msg = msg[i+len(kind.Error())+2:]
	}
	return msg
}
