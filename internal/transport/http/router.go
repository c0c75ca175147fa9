package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"helmsman/internal/store/model"

	"github.com/gin-gonic/gin"
)

// JournalReader 提供交易日志的只读查询。由 store.Journal 实现。
type JournalReader interface {
	ListRecentTrades(ctx context.Context, limit int) ([]model.TradeModel, error)
	ListRecentRejections(ctx context.Context, limit int) ([]model.RejectionModel, error)
	ListViolations(ctx context.Context, limit int) ([]model.ViolationModel, error)
	ListRecentExecutions(ctx context.Context, limit int) ([]model.ExecutionEventModel, error)
}

// Router 暴露引擎与日志的查询接口。
type Router struct {
	Engine  StatusSource
	Journal JournalReader
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/positions", r.handlePositions)
	if r.Journal != nil {
		group.GET("/trades", r.handleTrades)
		group.GET("/rejections", r.handleRejections)
		group.GET("/violations", r.handleViolations)
		group.GET("/executions", r.handleExecutions)
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.Engine.Status())
}

func (r *Router) handlePositions(c *gin.Context) {
	positions := r.Engine.Positions()
	c.JSON(http.StatusOK, gin.H{"count": len(positions), "positions": positions})
}

func (r *Router) handleTrades(c *gin.Context) {
	rows, err := r.Journal.ListRecentTrades(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "trades": rows})
}

func (r *Router) handleRejections(c *gin.Context) {
	rows, err := r.Journal.ListRecentRejections(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "rejections": rows})
}

func (r *Router) handleViolations(c *gin.Context) {
	rows, err := r.Journal.ListViolations(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "violations": rows})
}

func (r *Router) handleExecutions(c *gin.Context) {
	rows, err := r.Journal.ListRecentExecutions(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "executions": rows})
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}
