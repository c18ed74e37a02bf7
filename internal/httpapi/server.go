// Package httpapi serves the list view to browsers. Every browser session
// gets its own controller; handlers call into it and answer with the
// re-rendered page or fragment.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"library_desk/internal/forms"
	"library_desk/internal/home"
	"library_desk/internal/models"
	"library_desk/internal/view"
)

const (
	sessionCookie   = "desk_session"
	idleTimeout     = 30 * time.Second
	shutdownTimeout = 5 * time.Second

	// sessionTTL is how long a session may go unused before it is dropped.
	sessionTTL    = 30 * time.Minute
	sweepInterval = time.Minute
)

type Server struct {
	catalog  home.Catalog
	prefs    home.PreferenceStore
	options  home.Options
	renderer *view.Renderer
	log      zerolog.Logger

	sessions   map[string]*session
	sessionsMu sync.Mutex
	now        func() time.Time
}

type session struct {
	controller *home.Controller
	forget     func()
	lastSeen   time.Time
}

// New builds the web UI. prefs may be nil, in which case every session
// starts from the defaults and nothing is persisted.
func New(catalog home.Catalog, prefs home.PreferenceStore, opts home.Options, log zerolog.Logger) (*Server, error) {
	renderer, err := view.NewRenderer()
	if err != nil {
		return nil, err
	}
	return &Server{
		catalog:  catalog,
		prefs:    prefs,
		options:  opts,
		renderer: renderer,
		log:      log,
		sessions: make(map[string]*session),
		now:      time.Now,
	}, nil
}

func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/api/health", s.handleHealth)
	router.GET("/", s.handleIndex)

	router.POST("/search", s.handleSearch)
	router.POST("/status", s.handleStatus)
	router.POST("/page", s.handlePage)
	router.POST("/page-size", s.handlePageSize)
	router.POST("/modal/cancel", s.handleCancel)
	router.POST("/checkout", s.handleSubmitCheckout)

	books := router.Group("/books")
	{
		books.POST("", s.handleSubmitBook)
		books.POST("/new", s.handleOpenCreate)
		books.POST("/:id/edit", s.handleOpenEdit)
		books.POST("/:id/checkout", s.handleOpenCheckout)
		books.POST("/:id/delete", s.handleDelete)
		books.POST("/:id/checkin", s.handleCheckIn)
	}
	return router
}

// Run serves addr until ctx is done, then shuts down and closes every session.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweepSessions(sweepCtx)
	s.log.Info().Str("addr", addr).Msg("web ui started")

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	s.log.Info().Msg("web ui stopped")
	return err
}

// Close stops every session controller.
func (s *Server) Close() {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	for id, sess := range s.sessions {
		sess.forget()
		sess.controller.Close()
		delete(s.sessions, id)
	}
}

func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.evictIdle(s.now()); n > 0 {
				s.log.Debug().Int("evicted", n).Msg("idle sessions dropped")
			}
		}
	}
}

// evictIdle closes sessions unused for longer than sessionTTL. A session
// with work in flight is kept until it settles.
func (s *Server) evictIdle(now time.Time) int {
	s.sessionsMu.Lock()
	var stale []*session
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > sessionTTL && sess.controller.Idle() {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	s.sessionsMu.Unlock()

	for _, sess := range stale {
		sess.forget()
		sess.controller.Close()
	}
	return len(stale)
}

// requestLogger logs one line per request once the handler is done.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http")
	}
}

// controllerFor returns the controller of the caller's session, creating
// the session and its cookie when needed.
func (s *Server) controllerFor(c *gin.Context) *home.Controller {
	id, err := c.Cookie(sessionCookie)
	if err != nil || !validSessionID(id) {
		id = uuid.NewString()
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, id, 0, "/", "", false, true)

	ctrl, created := s.getOrCreateSession(c.Request.Context(), id)
	if created {
		ctrl.Load(c.Request.Context())
	}
	return ctrl
}

func validSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Server) getOrCreateSession(ctx context.Context, id string) (*home.Controller, bool) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.lastSeen = s.now()
		return sess.controller, false
	}

	owner := "web:" + id
	opts := s.options
	opts.Logger = &s.log
	forget := func() {}
	if s.prefs != nil {
		p, err := s.prefs.LoadPreferences(ctx, owner)
		if err != nil {
			s.log.Error().Err(err).Str("owner", owner).Msg("load preferences failed")
		}
		opts.Preferences = p
	}

	ctrl := home.NewController(s.catalog, opts)
	if s.prefs != nil {
		forget = home.RememberPreferences(ctrl, s.prefs, owner, s.log)
	}
	s.sessions[id] = &session{controller: ctrl, forget: forget, lastSeen: s.now()}
	s.log.Debug().Str("session", id).Msg("session created")
	return ctrl, true
}

type fragment int

const (
	fragmentApp fragment = iota
	fragmentResults
)

// respond waits for the controller to settle and renders the requested
// fragment. Plain form posts (no htmx) are redirected to the full page.
func (s *Server) respond(c *gin.Context, ctrl *home.Controller, frag fragment) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), idleTimeout)
	defer cancel()
	if err := ctrl.WaitIdle(ctx); err != nil {
		s.log.Warn().Err(err).Msg("controller did not settle")
	}

	if !isHTMX(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	page := view.Build(ctrl.State())
	var buf bytes.Buffer
	var err error
	if frag == fragmentResults {
		err = s.renderer.Results(&buf, page)
	} else {
		err = s.renderer.App(&buf, page)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("render failed")
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func isHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleIndex(c *gin.Context) {
	ctrl := s.controllerFor(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), idleTimeout)
	defer cancel()
	if err := ctrl.WaitIdle(ctx); err != nil {
		s.log.Warn().Err(err).Msg("controller did not settle")
	}

	var buf bytes.Buffer
	if err := s.renderer.Page(&buf, view.Build(ctrl.State())); err != nil {
		s.log.Error().Err(err).Msg("render failed")
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleSearch(c *gin.Context) {
	ctrl := s.controllerFor(c)
	ctrl.SetSearchInput(c.PostForm("q"))
	s.respond(c, ctrl, fragmentResults)
}

func (s *Server) handleStatus(c *gin.Context) {
	filter, err := models.ParseStatusFilter(c.PostForm("status"))
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	ctrl := s.controllerFor(c)
	ctrl.SetStatusFilter(c.Request.Context(), filter)
	s.respond(c, ctrl, fragmentApp)
}

func (s *Server) handlePage(c *gin.Context) {
	raw := c.Query("index")
	if raw == "" {
		raw = c.PostForm("index")
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		c.String(http.StatusBadRequest, "page index must be a number")
		return
	}
	ctrl := s.controllerFor(c)
	ctrl.SetPage(c.Request.Context(), index)
	s.respond(c, ctrl, fragmentApp)
}

func (s *Server) handlePageSize(c *gin.Context) {
	size, err := strconv.Atoi(c.PostForm("size"))
	if err != nil || !models.IsPageSize(size) {
		c.String(http.StatusBadRequest, "unsupported page size")
		return
	}
	ctrl := s.controllerFor(c)
	if _, err := ctrl.SetPageSize(c.Request.Context(), size); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	s.respond(c, ctrl, fragmentApp)
}

func (s *Server) handleOpenCreate(c *gin.Context) {
	ctrl := s.controllerFor(c)
	ctrl.OpenCreate()
	s.respond(c, ctrl, fragmentApp)
}

func (s *Server) handleOpenEdit(c *gin.Context) {
	ctrl := s.controllerFor(c)
	if _, err := ctrl.OpenEdit(c.Param("id")); err != nil {
		c.String(http.StatusNotFound, err.Error())
		return
	}
	s.respond(c, ctrl, fragmentApp)
}

func (s *Server) handleOpenCheckout(c *gin.Context) {
	ctrl := s.controllerFor(c)
	if _, err := ctrl.OpenCheckout(c.Param("id")); err != nil {
		c.String(http.StatusNotFound, err.Error())
		return
	}
	s.respond(c, ctrl, fragmentApp)
}

func (s *Server) handleCancel(c *gin.Context) {
	form := home.BookEditor
	switch c.Query("form") {
	case "", "book":
	case "checkout":
		form = home.CheckoutDialog
	default:
		c.String(http.StatusBadRequest, "unknown form")
		return
	}
	ctrl := s.controllerFor(c)
	ctrl.Cancel(form)
	s.respond(c, ctrl, fragmentApp)
}

// handleSubmitBook copies the posted fields into the editor and submits it.
// Validation and server errors end up in the form state, so they are
// rendered rather than returned.
func (s *Server) handleSubmitBook(c *gin.Context) {
	ctrl := s.controllerFor(c)
	for _, f := range forms.BookFields {
		if v, ok := c.GetPostForm(f.Name); ok {
			ctrl.SetBookField(f.Name, v)
		}
	}

	if err := ctrl.SubmitBook(c.Request.Context()); err != nil {
		if errors.Is(err, home.ErrFormClosed) {
			c.String(http.StatusConflict, err.Error())
			return
		}
		s.log.Debug().Err(err).Msg("book submit rejected")
	}
	s.respond(c, ctrl, fragmentApp)
}

func (s *Server) handleSubmitCheckout(c *gin.Context) {
	ctrl := s.controllerFor(c)
	if v, ok := c.GetPostForm(forms.FieldBorrowedBy); ok {
		ctrl.SetBorrower(v)
	}

	if err := ctrl.SubmitCheckout(c.Request.Context()); err != nil {
		if errors.Is(err, home.ErrFormClosed) {
			c.String(http.StatusConflict, err.Error())
			return
		}
		s.log.Debug().Err(err).Msg("checkout rejected")
	}
	s.respond(c, ctrl, fragmentApp)
}

// handleDelete deletes only when the post carries confirmed=true. htmx adds
// it after the hx-confirm prompt is accepted; a plain form post without it
// gets a confirmation page whose form sends it.
func (s *Server) handleDelete(c *gin.Context) {
	confirmed := c.PostForm("confirmed") == "true"
	ctrl := s.controllerFor(c)

	if !confirmed && !isHTMX(c) {
		var title string
		if book, ok := ctrl.State().FindBook(c.Param("id")); ok {
			title = book.Title
		}
		var buf bytes.Buffer
		if err := s.renderer.Confirm(&buf, view.BuildDeleteConfirm(c.Param("id"), title)); err != nil {
			s.log.Error().Err(err).Msg("render failed")
			c.String(http.StatusInternalServerError, "render failed")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
		return
	}

	err := ctrl.Delete(c.Request.Context(), c.Param("id"), home.ConfirmFunc(func(context.Context, string) bool {
		return confirmed
	}))
	if errors.Is(err, home.ErrDeleteDeclined) {
		c.String(http.StatusBadRequest, "delete must be confirmed")
		return
	}
	s.respond(c, ctrl, fragmentApp)
}

func (s *Server) handleCheckIn(c *gin.Context) {
	ctrl := s.controllerFor(c)
	_ = ctrl.CheckIn(c.Request.Context(), c.Param("id"))
	s.respond(c, ctrl, fragmentApp)
}
