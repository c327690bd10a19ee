// Package server exposes the recording session over HTTP with a websocket
// event stream, so a phone or browser on the LAN can act as a remote.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/audiolibrelab/micmagic/internal/auth"
	"github.com/audiolibrelab/micmagic/internal/memo"
	"github.com/audiolibrelab/micmagic/internal/service"
)

const shutdownTimeout = 5 * time.Second

// Deps are the collaborators the server drives.
type Deps struct {
	Session  service.Service
	Identity memo.Identity
	JWT      *auth.JWTService
	// Accounts enables the register, login and profile routes when set.
	Accounts *auth.Service
	Logger   *slog.Logger
}

// Server is the HTTP remote control for one recording session.
type Server struct {
	session     service.Service
	identity    memo.Identity
	jwt         *auth.JWTService
	accounts    *auth.Service
	hub         *Hub
	logger      *slog.Logger
	router      *gin.Engine
	unsubscribe func()
}

// New builds the server and starts forwarding session events to websocket
// clients.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Server{
		session:  d.Session,
		identity: d.Identity,
		jwt:      d.JWT,
		accounts: d.Accounts,
		hub:      NewHub(d.Logger),
		logger:   d.Logger,
	}
	s.router = s.routes()
	s.unsubscribe = d.Session.Subscribe(func(ev service.Event) {
		s.hub.Broadcast(string(ev.Type), ev)
	})
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/health", func(c *gin.Context) { ok(c, gin.H{"status": "ok"}) })
	r.GET("/ws", s.handleEvents)

	api := r.Group("/api")
	if s.accounts != nil {
		api.POST("/auth/register", s.handleRegister)
		api.POST("/auth/login", s.handleLogin)
		profile := api.Group("/profile", requireToken(s.jwt))
		profile.GET("", s.handleGetProfile)
		profile.PUT("", s.handleUpdateProfile)
	}

	session := api.Group("", requireToken(s.jwt), s.requireSessionOwner())
	session.GET("/status", s.handleStatus)

	capture := session.Group("/capture")
	capture.POST("/toggle", s.handleToggle)
	capture.POST("/start", s.captureAction(s.session.Start))
	capture.POST("/pause", s.captureAction(s.session.Pause))
	capture.POST("/resume", s.captureAction(s.session.Resume))
	capture.POST("/discard", s.captureAction(s.session.Discard))
	capture.POST("/stop", s.handleStop)

	recordings := session.Group("/recordings")
	recordings.GET("", s.handleListRecordings)
	recordings.POST("/reload", s.handleReload)
	recordings.GET("/:id", s.handleGetRecording)
	recordings.PATCH("/:id", s.handleRename)
	recordings.DELETE("/:id", s.handleDelete)
	recordings.POST("/:id/playback", s.handlePlayback)
	recordings.POST("/:id/share", s.handleShare)
	recordings.GET("/:id/audio", s.handleAudio)

	return r
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	_, port, _ := net.SplitHostPort(addr)
	s.logger.Info("Starting MicMagic Web Server",
		"addr", addr,
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), port))

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// Close stops forwarding events and disconnects websocket clients.
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.Close()
}

// Account handlers

type profileRequest struct {
	Username      string `json:"username" binding:"required,max=64"`
	Notifications *bool  `json:"notifications"`
	ImageURI      string `json:"image_uri" binding:"omitempty,url"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.accounts.Register(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			failErr(c, err)
			return
		}
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	created(c, resp)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.accounts.Login(c.Request.Context(), req)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, resp)
}

func (s *Server) handleGetProfile(c *gin.Context) {
	user, err := s.accounts.Profile(c.Request.Context(), c.GetString(ContextOwnerID))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, user)
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	owner := c.GetString(ContextOwnerID)
	current, err := s.accounts.Profile(c.Request.Context(), owner)
	if err != nil {
		failErr(c, err)
		return
	}
	p := auth.Profile{Username: req.Username, Notifications: current.Notifications, ImageURI: req.ImageURI}
	if req.Notifications != nil {
		p.Notifications = *req.Notifications
	}
	user, err := s.accounts.UpdateProfile(c.Request.Context(), owner, p)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok(c, user)
}

// Session handlers

func (s *Server) handleStatus(c *gin.Context) {
	ok(c, s.session.Status())
}

func (s *Server) handleToggle(c *gin.Context) {
	res, err := s.session.Toggle(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, res)
}

func (s *Server) captureAction(fn func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Request.Context()); err != nil {
			failErr(c, err)
			return
		}
		ok(c, s.session.Status())
	}
}

func (s *Server) handleStop(c *gin.Context) {
	entry, err := s.session.StopAndSave(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	created(c, entry)
}

func (s *Server) handleListRecordings(c *gin.Context) {
	if q, set := c.GetQuery("q"); set {
		s.session.SetQuery(q)
	}
	rows := s.session.Rows()
	entries := make([]memo.RecordingEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.Entry)
	}
	ok(c, entries)
}

func (s *Server) handleReload(c *gin.Context) {
	if err := s.session.Load(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	ok(c, s.session.Status())
}

func (s *Server) handleGetRecording(c *gin.Context) {
	entry, err := s.session.Entry(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, entry)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	id := c.Param("id")
	if err := s.session.Rename(c.Request.Context(), id, req.Name); err != nil {
		failErr(c, err)
		return
	}
	entry, err := s.session.Entry(id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, entry)
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.session.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePlayback(c *gin.Context) {
	playing, err := s.session.TogglePlayback(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"playing": playing})
}

func (s *Server) handleShare(c *gin.Context) {
	loc, err := s.session.Share(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"url": loc})
}

// handleAudio streams the recording file with range support.
func (s *Server) handleAudio(c *gin.Context) {
	entry, err := s.session.Entry(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	file, err := os.Open(entry.AudioRef)
	if err != nil {
		fail(c, http.StatusNotFound, "audio file not found")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		fail(c, http.StatusNotFound, "audio file not found")
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(entry.AudioRef))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Accept-Ranges", "bytes")
	http.ServeContent(c.Writer, c.Request, filepath.Base(entry.AudioRef), info.ModTime(), file)
}

// handleEvents upgrades to a websocket that receives every session event.
// Browsers cannot set headers on websocket requests, so the token comes in
// the query string.
func (s *Server) handleEvents(c *gin.Context) {
	claims, err := s.jwt.Validate(c.Query("token"))
	if err != nil {
		fail(c, http.StatusUnauthorized, "invalid token")
		return
	}
	owner, err := s.identity.CurrentOwnerID(c.Request.Context())
	if err != nil || owner != claims.OwnerID {
		fail(c, http.StatusForbidden, "session belongs to another user")
		return
	}

	data, err := jsonRaw(s.session.Status())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.hub.serve(c.Writer, c.Request, WSMessage{Event: "status", Data: data})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
