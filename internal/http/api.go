package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"update-user-service/internal/domain"
	"update-user-service/internal/metrics"
	"update-user-service/internal/service"
)

const (
	livenessMessage = "Update User Service Running"
	requestIDHeader = "X-Request-ID"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	users    service.UserService
	logger   *logrus.Logger
	metrics  *metrics.Recorder
	gatherer prometheus.Gatherer
}

func NewHandler(users service.UserService, logger *logrus.Logger, rec *metrics.Recorder, gatherer prometheus.Gatherer) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		users:    users,
		logger:   logger,
		metrics:  rec,
		gatherer: gatherer,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(), h.requestLogger())

	router.GET("/", h.liveness)
	router.PUT("/users/:username", h.updateUser)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

type updateUserRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
	Password  string  `json:"password"`
}

type updateUserResponse struct {
	Message string              `json:"message"`
	Result  domain.UpdateResult `json:"result"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, PUT, PATCH, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		h.metrics.Request(c.Request.Method, route, status)

		entry := h.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"duration":   time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("request failed")
			return
		}
		entry.Info("request handled")
	}
}

func (h *Handler) liveness(c *gin.Context) {
	c.String(http.StatusOK, livenessMessage)
}

func (h *Handler) updateUser(c *gin.Context) {
	username := c.Param("username")

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failUpdate(c, err)
		return
	}

	result, err := h.users.UpdateUser(c.Request.Context(), username, domain.UserUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		h.failUpdate(c, err)
		return
	}

	c.JSON(http.StatusOK, updateUserResponse{Message: "User updated", Result: result})
}

// failUpdate reports every failure the same way; callers cannot tell a
// missing user from a backend outage.
func (h *Handler) failUpdate(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, errorResponse{Message: "Error updating user", Error: err.Error()})
}
