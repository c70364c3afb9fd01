package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shortlink-platform/internal/ratelimit"
	"shortlink-platform/internal/service"
	"shortlink-platform/internal/store"
	"shortlink-platform/internal/validate"
)

const (
	// cacheKeyPrefix Redis 缓存键前缀
	cacheKeyPrefix = "shortlink:"
	// cacheMaxTTL 单条缓存的最长存活时间，实际值还会被链接过期时间压低
	cacheMaxTTL = time.Hour
)

// LinkHandler 短链接相关的 HTTP 接口
type LinkHandler struct {
	svc    *service.LinkService
	rdb    *redis.Client // 可为 nil，降级为纯数据库查询
	logger *zap.SugaredLogger
}

func NewLinkHandler(svc *service.LinkService, rdb *redis.Client, logger *zap.SugaredLogger) *LinkHandler {
	return &LinkHandler{
		svc:    svc,
		rdb:    rdb,
		logger: logger.Named("handler"),
	}
}

// CreateLinkRequest 创建短链接的请求体
type CreateLinkRequest struct {
	URL  string `json:"url" binding:"required"`
	Code string `json:"code"`
	TTL  string `json:"ttl"`
}

// CreateLink 创建短链接
// POST /api/shorten
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	result, err := h.svc.Create(c.Request.Context(), service.CreateRequest{
		URL:  req.URL,
		Code: req.Code,
		TTL:  req.TTL,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Redirect 短码重定向
// GET /:code
// 优先查 Redis 缓存，未命中再落库并回填；缓存命中时仍然记录访问。
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")
	if err := validate.Code(code); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": store.ErrNotFound.Error()})
		return
	}

	meta := visitMeta(c)

	if target, ok := h.cacheGet(c.Request.Context(), code); ok {
		h.svc.RecordVisit(code, meta)
		c.Redirect(http.StatusFound, target)
		return
	}

	link, err := h.svc.Resolve(c.Request.Context(), code, meta)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.cacheSet(c.Request.Context(), code, link.OriginalURL, link.ExpiresAt)
	c.Redirect(http.StatusFound, link.OriginalURL)
}

// Analytics 查询短码的访问统计
// GET /api/analytics/:code
func (h *LinkHandler) Analytics(c *gin.Context) {
	code := c.Param("code")

	stats, err := h.svc.Stats(c.Request.Context(), code)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// DeleteLink 删除短链接及其访问记录
// DELETE /api/links/:code
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	code := c.Param("code")

	if err := h.svc.Remove(c.Request.Context(), code); err != nil {
		h.writeError(c, err)
		return
	}

	h.cacheDel(c.Request.Context(), code)
	c.JSON(http.StatusOK, gin.H{"message": "短链接已删除"})
}

// Health 健康检查
// GET /health
func (h *LinkHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// writeError 将业务错误映射为统一的 HTTP 响应
func (h *LinkHandler) writeError(c *gin.Context, err error) {
	switch {
	case validate.IsInputError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrCodeExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrCodeSpaceExhausted):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.logger.Errorf("请求处理失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}

// visitMeta 从请求中抽取访问记录的附加信息
func visitMeta(c *gin.Context) store.VisitMeta {
	return store.VisitMeta{
		IP:        ratelimit.Identity(c.Request),
		UserAgent: c.GetHeader("User-Agent"),
		Referer:   c.GetHeader("Referer"),
	}
}

func (h *LinkHandler) cacheGet(ctx context.Context, code string) (string, bool) {
	if h.rdb == nil {
		return "", false
	}
	target, err := h.rdb.Get(ctx, cacheKeyPrefix+code).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			h.logger.Warnf("读取缓存失败: code=%s err=%v", code, err)
		}
		return "", false
	}
	return target, true
}

// cacheSet 回填缓存，存活时间不超过链接本身的剩余寿命
func (h *LinkHandler) cacheSet(ctx context.Context, code, target string, expiresAt int64) {
	if h.rdb == nil {
		return
	}
	ttl := time.Until(time.Unix(expiresAt, 0))
	if ttl <= 0 {
		return
	}
	if ttl > cacheMaxTTL {
		ttl = cacheMaxTTL
	}
	if err := h.rdb.Set(ctx, cacheKeyPrefix+code, target, ttl).Err(); err != nil {
		h.logger.Warnf("写入缓存失败: code=%s err=%v", code, err)
	}
}

func (h *LinkHandler) cacheDel(ctx context.Context, code string) {
	if h.rdb == nil {
		return
	}
	if err := h.rdb.Del(ctx, cacheKeyPrefix+code).Err(); err != nil {
		h.logger.Warnf("删除缓存失败: code=%s err=%v", code, err)
	}
}
