package api

import (
	"net/http"

	"svyaz/internal/content"
	"svyaz/internal/models"
)

type textRequest struct {
	Text string `json:"text"`
}

type commentResponse struct {
	Comment models.Comment `json:"comment"`
	Post    models.Post    `json:"post"`
}

func (a *API) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	text, err := content.ValidateMessage(req.Text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := a.store.CreatePost(caller(r), text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) likeHandler(liked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.store.SetLike(r.PathValue("id"), caller(r), liked)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (a *API) shareHandler(shared bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.store.SetShare(r.PathValue("id"), caller(r), shared)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (a *API) CommentHandler(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	text, err := content.ValidateMessage(req.Text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, p, err := a.store.AddComment(r.PathValue("id"), caller(r), text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commentResponse{Comment: c, Post: p})
}
