// Package httpapi implements the HTTP API gateway for Kazi.
//
// Security:
//   - API key authentication on every request (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - Per-user rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/kazi/internal/agent"
	"github.com/jkaninda/kazi/internal/observability"
	"github.com/jkaninda/kazi/internal/ratelimit"
	"github.com/jkaninda/kazi/internal/tasks"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// maxChatMessageBytes caps a single chat message. Larger payloads belong in
// tasks, not in the conversational turn.
const maxChatMessageBytes = 10000

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → user ID mapping. Keys from env.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz endpoint.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

func (c Config) maxRequestSize() int64 {
	if c.MaxRequestSize > 0 {
		return c.MaxRequestSize
	}
	return defaultMaxRequestSize
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config    Config
	agent     agent.Agent
	convStore agent.ConversationStore
	taskStore tasks.Store
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	server    *http.Server

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates an HTTP API gateway.
func NewGateway(cfg Config, a agent.Agent, convStore agent.ConversationStore, taskStore tasks.Store, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:    cfg,
		agent:     a,
		convStore: convStore,
		taskStore: taskStore,
		limiter:   rl,
		logger:    logger,
		okapi:     okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithOpenAPIDocs enables the Swagger UI.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Kazi",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Request body cap (applied globally).
	g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, g.config.maxRequestSize())
			next.ServeHTTP(w, r)
		})
	})

	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", g.authenticate)

	// Chat endpoints.
	g.group.Post("/chat", g.handleChat,
		okapi.DocSummary("Send a chat message to the assistant"),
		okapi.DocTags("Chat"),
		okapi.DocRequestBody(ChatRequest{}),
		okapi.DocResponse(ChatResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)

	// Conversation endpoints.
	g.group.Get("/conversations", g.handleConversationList,
		okapi.DocSummary("List the caller's conversations"),
		okapi.DocTags("Conversations"),
		okapi.DocResponse([]agent.ConversationInfo{}),
	)
	g.group.Delete("/conversations/{id}", g.handleConversationDelete,
		okapi.DocSummary("Delete a conversation"),
		okapi.DocTags("Conversations"),
		okapi.DocPathParam("id", "string", "Conversation ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Task endpoints.
	g.group.Post("/tasks", g.handleTaskCreate,
		okapi.DocSummary("Create a new task"),
		okapi.DocTags("Tasks"),
		okapi.DocRequestBody(TaskRequest{}),
		okapi.DocResponse(http.StatusCreated, TaskResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Get("/tasks", g.handleTaskList,
		okapi.DocSummary("List the caller's tasks"),
		okapi.DocTags("Tasks"),
		okapi.DocResponse([]TaskResponse{}),
	)
	g.group.Get("/tasks/{id}", g.handleTaskGet,
		okapi.DocSummary("Get a task by ID"),
		okapi.DocTags("Tasks"),
		okapi.DocPathParam("id", "integer", "Task ID"),
		okapi.DocResponse(TaskResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Put("/tasks/{id}", g.handleTaskUpdate,
		okapi.DocSummary("Update a task's title or description"),
		okapi.DocTags("Tasks"),
		okapi.DocPathParam("id", "integer", "Task ID"),
		okapi.DocRequestBody(TaskUpdateRequest{}),
		okapi.DocResponse(TaskResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/tasks/{id}/complete", g.handleTaskComplete,
		okapi.DocSummary("Mark a task completed or reopen it"),
		okapi.DocTags("Tasks"),
		okapi.DocPathParam("id", "integer", "Task ID"),
		okapi.DocRequestBody(TaskCompleteRequest{}),
		okapi.DocResponse(TaskResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Delete("/tasks/{id}", g.handleTaskDelete,
		okapi.DocSummary("Delete a task"),
		okapi.DocTags("Tasks"),
		okapi.DocPathParam("id", "integer", "Task ID"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Chat ---

// ChatRequest is the JSON body for POST /v1/chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"` // Empty = new conversation.
}

// ChatResponse is the JSON response for POST /v1/chat.
type ChatResponse struct {
	ConversationID string                 `json:"conversation_id"`
	Message        string                 `json:"message"`
	ToolCalls      []agent.ToolCallRecord `json:"tool_calls"`
	CorrelationID  string                 `json:"correlation_id"`
}

func (g *Gateway) handleChat(c *okapi.Context) error {
	userID := c.GetString("userID")

	if g.limiter != nil {
		if err := g.limiter.Allow(userID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("message is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.AbortBadRequest("message is required")
	}
	if len(req.Message) > maxChatMessageBytes {
		return c.AbortBadRequest("message too large")
	}
	if req.ConversationID != "" {
		if _, err := uuid.Parse(req.ConversationID); err != nil {
			return c.AbortBadRequest("invalid conversation_id")
		}
	}

	correlationID := newCorrelationID()

	g.logger.Info("http chat",
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
		slog.String("conversation_id", req.ConversationID),
	)

	resp, err := g.agent.Process(c.Context(), &agent.Input{
		UserID:         userID,
		Message:        req.Message,
		CorrelationID:  correlationID,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		if errors.Is(err, agent.ErrConversationNotFound) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "conversation not found"})
		}
		g.logger.Error("chat processing failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("processing failed")
	}

	toolCalls := resp.ToolCalls
	if toolCalls == nil {
		toolCalls = []agent.ToolCallRecord{}
	}
	return c.OK(ChatResponse{
		ConversationID: resp.ConversationID,
		Message:        resp.Message,
		ToolCalls:      toolCalls,
		CorrelationID:  correlationID,
	})
}

// --- Conversations ---

func (g *Gateway) handleConversationList(c *okapi.Context) error {
	userID := c.GetString("userID")

	infos, err := g.convStore.ListConversations(c.Context(), userID)
	if err != nil {
		g.logger.Error("listing conversations failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("listing conversations failed")
	}
	if infos == nil {
		infos = []agent.ConversationInfo{}
	}
	return c.OK(infos)
}

func (g *Gateway) handleConversationDelete(c *okapi.Context) error {
	userID := c.GetString("userID")

	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.AbortBadRequest("invalid conversation ID")
	}

	if err := g.convStore.DeleteConversation(c.Context(), convID, userID); err != nil {
		if errors.Is(err, agent.ErrConversationNotFound) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "conversation not found"})
		}
		g.logger.Error("deleting conversation failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("deleting conversation failed")
	}
	return c.OK(map[string]string{"status": "deleted"})
}

// --- Tasks ---

// TaskRequest is the JSON body for POST /v1/tasks.
type TaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// TaskUpdateRequest is the JSON body for PUT /v1/tasks/{id}.
// Nil fields are left unchanged.
type TaskUpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// TaskCompleteRequest is the JSON body for POST /v1/tasks/{id}/complete.
type TaskCompleteRequest struct {
	Completed *bool `json:"completed,omitempty"` // nil = true
}

// TaskResponse is the JSON shape of a task.
type TaskResponse struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toTaskResponse(t *tasks.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (g *Gateway) handleTaskCreate(c *okapi.Context) error {
	userID := c.GetString("userID")

	var req TaskRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if err := tasks.ValidateTitle(req.Title); err != nil {
		return c.AbortBadRequest(err.Error())
	}
	if err := tasks.ValidateDescription(req.Description); err != nil {
		return c.AbortBadRequest(err.Error())
	}

	task, err := g.taskStore.CreateTask(c.Context(), userID, tasks.CreateInput{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
	})
	if err != nil {
		g.logger.Error("creating task failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("creating task failed")
	}
	return c.JSON(http.StatusCreated, toTaskResponse(task))
}

func (g *Gateway) handleTaskList(c *okapi.Context) error {
	userID := c.GetString("userID")

	filter := tasks.ListFilter{}
	q := c.Request().URL.Query()
	if v := q.Get("completed"); v != "" {
		completed, err := strconv.ParseBool(v)
		if err != nil {
			return c.AbortBadRequest("completed must be true or false")
		}
		filter.Completed = &completed
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > tasks.MaxListLimit {
			return c.AbortBadRequest("limit must be between 1 and 100")
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return c.AbortBadRequest("offset must not be negative")
		}
		filter.Offset = offset
	}

	list, err := g.taskStore.ListTasks(c.Context(), userID, filter)
	if err != nil {
		g.logger.Error("listing tasks failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("listing tasks failed")
	}

	resp := make([]TaskResponse, len(list))
	for i := range list {
		resp[i] = toTaskResponse(&list[i])
	}
	return c.OK(resp)
}

func (g *Gateway) handleTaskGet(c *okapi.Context) error {
	userID := c.GetString("userID")

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.AbortBadRequest("invalid task ID")
	}

	task, err := g.taskStore.GetTask(c.Context(), userID, id)
	if err != nil {
		return taskError(c, g.logger, err)
	}
	return c.OK(toTaskResponse(task))
}

func (g *Gateway) handleTaskUpdate(c *okapi.Context) error {
	userID := c.GetString("userID")

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.AbortBadRequest("invalid task ID")
	}

	var req TaskUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Title == nil && req.Description == nil {
		return c.AbortBadRequest("provide a title or a description to update")
	}
	if req.Title != nil {
		if err := tasks.ValidateTitle(*req.Title); err != nil {
			return c.AbortBadRequest(err.Error())
		}
		trimmed := strings.TrimSpace(*req.Title)
		req.Title = &trimmed
	}
	if req.Description != nil {
		if err := tasks.ValidateDescription(*req.Description); err != nil {
			return c.AbortBadRequest(err.Error())
		}
	}

	task, err := g.taskStore.UpdateTask(c.Context(), userID, id, tasks.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		return taskError(c, g.logger, err)
	}
	return c.OK(toTaskResponse(task))
}

func (g *Gateway) handleTaskComplete(c *okapi.Context) error {
	userID := c.GetString("userID")

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.AbortBadRequest("invalid task ID")
	}

	var req TaskCompleteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	completed := true
	if req.Completed != nil {
		completed = *req.Completed
	}

	task, err := g.taskStore.SetTaskCompleted(c.Context(), userID, id, completed)
	if err != nil {
		return taskError(c, g.logger, err)
	}
	return c.OK(toTaskResponse(task))
}

func (g *Gateway) handleTaskDelete(c *okapi.Context) error {
	userID := c.GetString("userID")

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.AbortBadRequest("invalid task ID")
	}

	if err := g.taskStore.DeleteTask(c.Context(), userID, id); err != nil {
		return taskError(c, g.logger, err)
	}
	return c.OK(map[string]string{"status": "deleted"})
}

// --- Health ---

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped user ID on the context.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		userID := ""
		for key, mapped := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				userID = mapped
			}
		}
		if userID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("userID", userID)
		return next(c)
	}
}

// --- Helpers ---

// taskError maps task store errors to appropriate HTTP responses.
func taskError(c *okapi.Context, logger *slog.Logger, err error) error {
	if errors.Is(err, tasks.ErrTaskNotFound) {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "task not found"})
	}
	logger.Error("task operation failed", slog.String("error", err.Error()))
	return c.AbortInternalServerError("task operation failed")
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
