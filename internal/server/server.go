// Package server is a development backend implementing the chat REST
// contract over per-user in-memory stores, so the HTTP client can be run
// end to end without the production API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"chatdesk/internal/api"
	"chatdesk/internal/mock"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Options configures a Server
type Options struct {
	// Tokens lists the accepted bearer tokens; empty accepts any token
	Tokens []string
	// ChatPerMinute limits sends per user; 0 disables the limit
	ChatPerMinute int
	// NewBackend builds the store of a newly seen user
	NewBackend func() *mock.Backend
	Logger     *slog.Logger
}

type user struct {
	backend *mock.Backend
	limiter *rate.Limiter
}

// Server serves the REST contract
type Server struct {
	engine        *gin.Engine
	logger        *slog.Logger
	tokens        map[string]struct{}
	chatPerMinute int
	newBackend    func() *mock.Backend

	mu    sync.Mutex
	users map[string]*user
	// owners maps conversation ids to the token that created them
	owners map[string]string
}

const tokenKey = "token"

// New creates a Server with its routes registered
func New(opts Options) *Server {
	s := &Server{
		logger:        opts.Logger,
		tokens:        make(map[string]struct{}, len(opts.Tokens)),
		chatPerMinute: opts.ChatPerMinute,
		newBackend:    opts.NewBackend,
		users:         make(map[string]*user),
		owners:        make(map[string]string),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.newBackend == nil {
		s.newBackend = func() *mock.Backend { return mock.New(mock.WithLogger(s.logger)) }
	}
	for _, t := range opts.Tokens {
		s.tokens[t] = struct{}{}
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	s.engine = engine
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	authed := s.engine.Group("/", s.authenticate())

	authed.GET("/settings", s.getSettings)
	authed.PUT("/settings/anthropic-key", s.updateAPIKey)
	authed.DELETE("/settings/anthropic-key", s.deleteAPIKey)

	authed.GET("/conversations", s.listConversations)
	authed.POST("/conversations", s.createConversation)

	conv := authed.Group("/conversations/:id", s.authorizeConversation())
	conv.GET("/messages", s.getMessages)
	conv.POST("/chat", s.chat)
	conv.DELETE("", s.deleteConversation)
}

// Run listens on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			abort(c, api.NewError(http.StatusUnauthorized, api.CodeInvalidToken, "Missing bearer token"))
			return
		}
		if len(s.tokens) > 0 {
			if _, known := s.tokens[token]; !known {
				abort(c, api.NewError(http.StatusUnauthorized, api.CodeInvalidToken, "Invalid or expired token"))
				return
			}
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}

// authorizeConversation rejects conversations created by another user.
// Unknown ids pass through and become 404 in the user's own store.
func (s *Server) authorizeConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		owner, ok := s.owners[c.Param("id")]
		s.mu.Unlock()
		if ok && owner != c.GetString(tokenKey) {
			abort(c, api.NewError(http.StatusForbidden, api.CodeForbidden, "You don't have access to this conversation"))
			return
		}
		c.Next()
	}
}

func (s *Server) user(c *gin.Context) *user {
	token := c.GetString(tokenKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[token]
	if !ok {
		u = &user{backend: s.newBackend()}
		if s.chatPerMinute > 0 {
			u.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.chatPerMinute)), s.chatPerMinute)
		}
		s.users[token] = u
	}
	return u
}

func (s *Server) getSettings(c *gin.Context) {
	settings, err := s.user(c).backend.GetSettings(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) updateAPIKey(c *gin.Context) {
	var req api.APIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.APIKey) == "" {
		abort(c, api.NewError(http.StatusBadRequest, api.CodeBadRequest, "api_key is required"))
		return
	}
	settings, err := s.user(c).backend.UpdateAPIKey(c.Request.Context(), strings.TrimSpace(req.APIKey))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) deleteAPIKey(c *gin.Context) {
	if err := s.user(c).backend.DeleteAPIKey(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listConversations(c *gin.Context) {
	convs, err := s.user(c).backend.ListConversations(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ConversationList{Conversations: convs})
}

func (s *Server) createConversation(c *gin.Context) {
	conv, err := s.user(c).backend.CreateConversation(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	s.mu.Lock()
	s.owners[conv.ID] = c.GetString(tokenKey)
	s.mu.Unlock()
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) getMessages(c *gin.Context) {
	msgs, err := s.user(c).backend.GetMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageList{Messages: msgs})
}

func (s *Server) chat(c *gin.Context) {
	var req api.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		abort(c, api.NewError(http.StatusBadRequest, api.CodeBadRequest, "message is required"))
		return
	}
	u := s.user(c)
	if u.limiter != nil && !u.limiter.Allow() {
		abort(c, api.NewError(http.StatusTooManyRequests, api.CodeRateLimited, "Too many messages, slow down"))
		return
	}
	reply, err := u.backend.SendMessage(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ChatResponse{Message: reply.Assistant, UserMessage: reply.User})
}

func (s *Server) deleteConversation(c *gin.Context) {
	id := c.Param("id")
	if err := s.user(c).backend.DeleteConversation(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	s.mu.Lock()
	delete(s.owners, id)
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Server) fail(c *gin.Context, err error) {
	apiErr, ok := api.AsAPIError(err)
	if !ok {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
		apiErr = api.NewError(http.StatusInternalServerError, api.CodeInternal, "Something went wrong")
	}
	abort(c, apiErr)
}

func abort(c *gin.Context, e *api.APIError) {
	c.AbortWithStatusJSON(e.Status, gin.H{"error": gin.H{"code": e.Code, "message": e.Message}})
}
