// Package server exposes the storefront over HTTP: the rendered page, a
// JSON view of the same pipeline, suggestions and the raw document.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"watchfront/catalog"
	"watchfront/config"
	"watchfront/logging"
	"watchfront/models"
	"watchfront/render"
	"watchfront/storage"
)

const (
	displayCookie    = "display_mode"
	displayCookieAge = 365 * 24 * 60 * 60
)

var logger = logging.New("server")

type Server struct {
	cfg        config.ServerConfig
	loaded     storage.Loaded
	collection *catalog.Collection
	document   []byte
	renderer   *render.Renderer
	engine     *gin.Engine
}

// New builds the router over a collection loaded once at startup.
func New(cfg config.ServerConfig, loaded storage.Loaded, renderer *render.Renderer) (*Server, error) {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	if loaded.Fallback {
		logger.Warnf("serving sample listings: %v", loaded.Reason)
	}

	doc, err := storage.EncodeDocument(loaded.Document)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		loaded:     loaded,
		collection: loaded.Collection(),
		document:   doc,
		renderer:   renderer,
		engine:     gin.New(),
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/", s.page)
	s.engine.GET("/health", s.health)
	s.engine.GET("/listings.json", s.rawDocument)

	api := s.engine.Group("/api")
	{
		api.GET("/listings", s.listings)
		api.GET("/suggest", s.suggest)
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// viewFromRequest reads the view from the query. The display mode falls
// back to the cookie, and an explicit choice is remembered in it.
func (s *Server) viewFromRequest(c *gin.Context) catalog.ViewState {
	v := catalog.DefaultViewState()

	if cookie, err := c.Cookie(displayCookie); err == nil {
		if d, ok := catalog.ParseDisplayMode(cookie); ok {
			v.Display = d
		}
	}
	if d, ok := catalog.ParseDisplayMode(c.Query("view")); ok {
		v.Display = d
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(displayCookie, string(d), displayCookieAge, "/", "", false, false)
	}

	if cat, ok := models.ParseCategory(c.Query("category")); ok {
		v.Category = string(cat)
	}
	if mode, ok := catalog.ParseSortMode(c.Query("sort")); ok {
		v.Sort = mode
	}
	v.Search = strings.TrimSpace(c.Query("q"))
	return v
}

func (s *Server) page(c *gin.Context) {
	v := s.viewFromRequest(c)
	listings := catalog.ApplyView(s.collection, v)

	page := s.renderer.NewPage(v, listings, s.loaded.Document.UpdatedAt)
	if s.collection.Len() == 0 && s.loaded.Reason != nil {
		page.Banner = "Listings could not be loaded. Please try again later."
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := s.renderer.WritePage(c.Writer, page); err != nil {
		logger.Errorf("render page: %v", err)
	}
}

type listingsResponse struct {
	Count    int              `json:"count"`
	Message  string           `json:"message"`
	Listings []models.Listing `json:"listings"`
}

func (s *Server) listings(c *gin.Context) {
	v := s.viewFromRequest(c)
	listings := catalog.ApplyView(s.collection, v)
	c.JSON(http.StatusOK, listingsResponse{
		Count:    len(listings),
		Message:  catalog.StatusMessage(v, len(listings)),
		Listings: listings,
	})
}

func (s *Server) suggest(c *gin.Context) {
	suggestions := catalog.Suggest(s.collection, c.Query("q"))
	if suggestions == nil {
		suggestions = []catalog.Suggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (s *Server) rawDocument(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", s.document)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"listings": s.collection.Len(),
		"fallback": s.loaded.Fallback,
		"source":   s.loaded.Document.Source,
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("%s %s %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
