// Package handler exposes account management over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"absen/internal/account"
	"absen/internal/credential"
	"absen/internal/model"
	"absen/internal/portal"
)

// Accounts is the service behind the routes.
type Accounts interface {
	Register(ctx context.Context, in account.RegisterInput) (account.Registration, error)
	SetActive(ctx context.Context, id string, active bool) (model.Account, error)
	Toggle(ctx context.Context, id string) (model.Account, error)
	Status(ctx context.Context, id string) (account.Status, error)
	Remove(ctx context.Context, id string) error
	Courses(ctx context.Context, id string) ([]model.Course, error)
	Active(ctx context.Context) ([]model.Account, error)
}

// Handler serves /accounts routes.
type Handler struct {
	accounts Accounts
	log      *zap.Logger
}

// New builds a handler.
func New(accounts Accounts, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{accounts: accounts, log: log.With(zap.String("component", "handler"))}
}

// Register mounts the routes on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/accounts", h.register)
	g.GET("/accounts", h.list)
	g.GET("/accounts/:id", h.status)
	g.POST("/accounts/:id/toggle", h.toggle)
	g.PUT("/accounts/:id/active", h.setActive)
	g.DELETE("/accounts/:id", h.remove)
	g.GET("/accounts/:id/courses", h.courses)
}

type accountView struct {
	ID           string      `json:"id"`
	Username     string      `json:"username,omitempty"`
	LoginID      string      `json:"login_id"`
	StudentName  string      `json:"student_name,omitempty"`
	Active       bool        `json:"active"`
	RegisteredAt time.Time   `json:"registered_at"`
	LastLogin    *time.Time  `json:"last_login,omitempty"`
	LastCheck    *time.Time  `json:"last_check,omitempty"`
	Stats        model.Stats `json:"stats"`
}

func viewOf(a model.Account) accountView {
	return accountView{
		ID:           a.ID,
		Username:     a.Username,
		LoginID:      a.LoginID,
		StudentName:  a.StudentName,
		Active:       a.Active,
		RegisteredAt: a.RegisteredAt,
		LastLogin:    a.LastLogin,
		LastCheck:    a.LastCheck,
		Stats:        a.Stats,
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	var le *portal.LoginError
	switch {
	case errors.Is(err, account.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, credential.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	case errors.Is(err, portal.ErrLoginTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "portal login timed out"})
	case errors.As(err, &le):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "portal login failed", "reason": le.Reason})
	case errors.Is(err, portal.ErrPortalUnreachable), errors.Is(err, portal.ErrUnexpectedPage), errors.Is(err, portal.ErrSessionInvalid):
		c.JSON(http.StatusBadGateway, gin.H{"error": "portal unavailable"})
	case errors.Is(err, credential.ErrDecryption):
		h.log.Error("undecryptable account record", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "account record unreadable"})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) register(c *gin.Context) {
	var req struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		LoginID  string `json:"login_id" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reg, err := h.accounts.Register(c.Request.Context(), account.RegisterInput{
		ID:       req.ID,
		Username: req.Username,
		LoginID:  req.LoginID,
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	if reg.Updated {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"account": viewOf(reg.Account), "course_count": len(reg.Courses), "updated": reg.Updated})
}

func (h *Handler) list(c *gin.Context) {
	accs, err := h.accounts.Active(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	views := make([]accountView, 0, len(accs))
	for _, a := range accs {
		views = append(views, viewOf(a))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views})
}

func (h *Handler) status(c *gin.Context) {
	st, err := h.accounts.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":         viewOf(st.Account),
		"tracked_courses": st.TrackedCourses,
		"tracked_items":   st.TrackedItems,
	})
}

func (h *Handler) toggle(c *gin.Context) {
	acc, err := h.accounts.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": viewOf(acc)})
}

func (h *Handler) setActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acc, err := h.accounts.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": viewOf(acc)})
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.accounts.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) courses(c *gin.Context) {
	courses, err := h.accounts.Courses(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}
