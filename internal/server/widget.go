package server

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"taskboard/internal/engine"
	"taskboard/internal/pages"
	"taskboard/internal/view"
)

// registerWidget mounts the script-free HTML widget. Every click is a form
// POST answered with a redirect back to the page.
func registerWidget(r chi.Router, e *engine.Engine, renderer *view.Renderer, logger *log.Logger) {
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		p, err := e.OpenPage(req.Context())
		if err != nil {
			widgetError(w, logger, err)
			return
		}
		http.Redirect(w, req, view.PagePath(p.ID), http.StatusSeeOther)
	})

	r.Get("/pages/{page_id}", func(w http.ResponseWriter, req *http.Request) {
		pageID := chi.URLParam(req, "page_id")
		res, err := e.View(pageID)
		if err != nil {
			widgetError(w, logger, err)
			return
		}
		var buf bytes.Buffer
		if err := renderer.Render(&buf, pageID, res.Snapshot); err != nil {
			widgetError(w, logger, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(buf.Bytes())
	})

	r.Post("/pages/{page_id}/regions/{region}", func(w http.ResponseWriter, req *http.Request) {
		pageID := chi.URLParam(req, "page_id")
		if err := req.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		region := chi.URLParam(req, "region")
		var err error
		// The entry field travels with the save and cancel buttons.
		if _, ok := req.PostForm["newItemInput"]; ok {
			_, err = e.SubmitForm(req.Context(), pageID, region, req.PostForm.Get("newItemInput"))
		} else {
			_, err = e.Click(req.Context(), pageID, region, "")
		}
		if err != nil {
			widgetError(w, logger, err)
			return
		}
		http.Redirect(w, req, view.PagePath(pageID), http.StatusSeeOther)
	})

	r.Post("/pages/{page_id}/regions/{region}/items/{task_id}", func(w http.ResponseWriter, req *http.Request) {
		pageID := chi.URLParam(req, "page_id")
		if _, err := e.Click(req.Context(), pageID, chi.URLParam(req, "region"), chi.URLParam(req, "task_id")); err != nil {
			widgetError(w, logger, err)
			return
		}
		http.Redirect(w, req, view.PagePath(pageID), http.StatusSeeOther)
	})

	r.Post("/pages/{page_id}/close", func(w http.ResponseWriter, req *http.Request) {
		if err := e.ClosePage(req.Context(), chi.URLParam(req, "page_id")); err != nil {
			widgetError(w, logger, err)
			return
		}
		http.Redirect(w, req, "/", http.StatusSeeOther)
	})
}

func widgetError(w http.ResponseWriter, logger *log.Logger, err error) {
	switch {
	case errors.Is(err, pages.ErrNotFound):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<!doctype html><title>Page closed</title><p>This page is no longer open. <a href="/">Start a new one</a>.</p>`))
	case errors.Is(err, engine.ErrUnknownRegion):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, pages.ErrTooManyPages):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		logger.Error("widget request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
