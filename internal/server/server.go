// Package server exposes a core.Store over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/aretw0/firekit/pkg/core"
)

// document is the wire form of core.Document.
type document struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

func toWire(docs []core.Document) []document {
	out := make([]document, 0, len(docs))
	for _, d := range docs {
		out = append(out, document{ID: d.ID, Data: d.Data})
	}
	return out
}

func init() {
	// Request bodies keep integer precision.
	binding.EnableDecoderUseNumber = true
}

// Handler serves the document API.
type Handler struct {
	Store  core.Store
	Logger *slog.Logger
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	if h.Logger == nil {
		h.Logger = slog.New(slog.DiscardHandler)
	}
	r := gin.New()
	r.Use(gin.Recovery(), h.logRequests)

	v1 := r.Group("/v1")
	v1.GET("/collections", h.ListCollections)
	v1.GET("/collections/:collection/documents", h.Query)
	v1.POST("/collections/:collection/documents", h.Create)
	v1.GET("/collections/:collection/documents/:id", h.Get)
	v1.PUT("/collections/:collection/documents/:id", h.Put)
	v1.PATCH("/collections/:collection/documents/:id", h.Patch)
	v1.DELETE("/collections/:collection/documents/:id", h.Delete)
	v1.GET("/collections/:collection/listen", h.Listen)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

func (h *Handler) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.Logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrReadOnly):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrInvalidArgument):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ListCollections returns the collection names when the store can list them.
func (h *Handler) ListCollections(c *gin.Context) {
	lister, ok := h.Store.(core.CollectionLister)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "store cannot list collections"})
		return
	}
	cols, err := lister.Collections(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	names := make([]string, 0, len(cols))
	for _, col := range cols {
		names = append(names, string(col))
	}
	c.JSON(http.StatusOK, names)
}

// Query returns the documents matching the repeated "where" parameters.
func (h *Handler) Query(c *gin.Context) {
	f, err := ParseFilters(c.QueryArray("where"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	docs, err := h.Store.QueryDocuments(c.Request.Context(), core.Collection(c.Param("collection")), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toWire(docs))
}

// Get returns one document.
func (h *Handler) Get(c *gin.Context) {
	doc, err := h.Store.GetDocument(c.Request.Context(), core.Collection(c.Param("collection")), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, document{ID: doc.ID, Data: doc.Data})
}

// Create stores the body under an allocated id.
func (h *Handler) Create(c *gin.Context) {
	col := core.Collection(c.Param("collection"))
	id := h.Store.AllocateID(col)
	h.write(c, col, id, false, http.StatusCreated)
}

// Put replaces a document.
func (h *Handler) Put(c *gin.Context) {
	h.write(c, core.Collection(c.Param("collection")), c.Param("id"), false, http.StatusOK)
}

// Patch merges the body into a document.
func (h *Handler) Patch(c *gin.Context) {
	h.write(c, core.Collection(c.Param("collection")), c.Param("id"), true, http.StatusOK)
}

func (h *Handler) write(c *gin.Context, col core.Collection, id string, merge bool, status int) {
	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.SetDocument(c.Request.Context(), col, id, data, merge); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, gin.H{"id": id})
}

// Delete removes a document.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.Store.DeleteDocument(c.Request.Context(), core.Collection(c.Param("collection")), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Listen streams the matching set as server-sent events until the client
// disconnects. Each push is a "snapshot" event; store errors are "error" events.
func (h *Handler) Listen(c *gin.Context) {
	f, err := ParseFilters(c.QueryArray("where"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	snaps, err := h.Store.Subscribe(ctx, core.Collection(c.Param("collection")), f)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-snaps:
			if !ok {
				return false
			}
			if snap.Err != nil {
				c.SSEvent("error", gin.H{"error": snap.Err.Error()})
				return true
			}
			c.SSEvent("snapshot", toWire(snap.Documents))
			return true
		}
	})
}

// Server runs the HTTP API until its context ends.
type Server struct {
	Addr    string
	Handler *Handler
}

// Run listens on Addr and shuts down gracefully when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           NewRouter(s.Handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	lifecycle.Go(ctx, func(context.Context) error {
		errCh <- srv.ListenAndServe()
		return nil
	})
	s.Handler.Logger.Info("http api listening", "addr", s.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
