package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskboard/internal/model"
	"taskboard/internal/service/task"
)

type TaskHandler struct {
	tasks  *task.Service
	logger *zap.Logger
}

func NewTaskHandler(tasks *task.Service, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

func (h *TaskHandler) ownerID(c *gin.Context) (int64, bool) {
	userID, ok := c.Get("user_id")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, false
	}
	return userID.(int64), true
}

// dueDateFormats accepted on create, tried in order.
var dueDateFormats = []string{time.RFC3339, "2006-01-02"}

func parseDueDate(raw string) (time.Time, bool) {
	for _, layout := range dueDateFormats {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CreateTask handles POST /tasks.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		DueDate     string `json:"dueDate"`
		Priority    string `json:"priority"`
		Category    string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	in := task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    model.Priority(req.Priority),
		Category:    model.Category(req.Category),
	}
	if req.DueDate != "" {
		due, ok := parseDueDate(req.DueDate)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due date"})
			return
		}
		in.DueDate = due
	}

	created, err := h.tasks.Create(c.Request.Context(), ownerID, in)
	if err != nil {
		h.respondError(c, err, "CreateTask")
		return
	}

	h.logger.Info("Task created",
		zap.Int64("task_id", created.ID),
		zap.Int64("owner_id", ownerID),
	)
	c.JSON(http.StatusCreated, created)
}

// ListTasks handles GET /tasks?page&limit.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	page, limit := pageParams(c)
	result, err := h.tasks.List(c.Request.Context(), ownerID, page, limit)
	if err != nil {
		h.respondError(c, err, "ListTasks")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListOverdueTasks handles GET /tasks/overdue?page&limit.
func (h *TaskHandler) ListOverdueTasks(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	page, limit := pageParams(c)
	result, err := h.tasks.ListOverdue(c.Request.Context(), ownerID, page, limit)
	if err != nil {
		h.respondError(c, err, "ListOverdueTasks")
		return
	}
	c.JSON(http.StatusOK, result)
}

// TaskStats handles GET /tasks/stats.
func (h *TaskHandler) TaskStats(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	stats, err := h.tasks.Stats(c.Request.Context(), ownerID)
	if err != nil {
		h.respondError(c, err, "TaskStats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// UpdateTask handles PATCH /tasks/:id. Only status and description are
// mutable; fields absent from the body are left as they are.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	var req struct {
		Status      *string `json:"status"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	in := task.UpdateInput{Description: req.Description}
	if req.Status != nil {
		status := model.Status(*req.Status)
		in.Status = &status
	}

	updated, err := h.tasks.Update(c.Request.Context(), ownerID, taskID, in)
	if err != nil {
		h.respondError(c, err, "UpdateTask")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteTask handles DELETE /tasks/:id.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	if err := h.tasks.Delete(c.Request.Context(), ownerID, taskID); err != nil {
		h.respondError(c, err, "DeleteTask")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted successfully"})
}

func pageParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))
	return page, limit
}

func (h *TaskHandler) respondError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, task.ErrMissingFields),
		errors.Is(err, task.ErrInvalidStatus),
		errors.Is(err, task.ErrInvalidPriority),
		errors.Is(err, task.ErrInvalidCategory),
		errors.Is(err, task.ErrDueDateInFuture):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
