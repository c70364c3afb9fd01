package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"shortlink-platform/internal/model"
	"shortlink-platform/internal/store"
	"shortlink-platform/internal/validate"
	"shortlink-platform/pkg/geoip"
)

// maxGenerateAttempts 自动生成短码的最大重试次数
const maxGenerateAttempts = 5

// ErrCodeSpaceExhausted 表示自动生成短码的重试次数耗尽
// 在 62^6 的空间里几乎不可能发生，但必须是可测试的失败路径而非死循环。
var ErrCodeSpaceExhausted = errors.New("短码生成重试次数耗尽")

// CodeGenerator 提议候选短码
type CodeGenerator interface {
	Generate() (string, error)
}

// CreateRequest 创建短链接的输入
type CreateRequest struct {
	URL  string
	Code string
	TTL  string
}

// CreateResult 创建成功后的输出
type CreateResult struct {
	Code        string `json:"code"`
	ShortURL    string `json:"short_url"`
	OriginalURL string `json:"original_url"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Analytics 单个短码的统计视图
type Analytics struct {
	Code         string            `json:"code"`
	OriginalURL  string            `json:"original_url"`
	CreatedAt    int64             `json:"created_at"`
	ExpiresAt    int64             `json:"expires_at"`
	TotalVisits  int64             `json:"total_visits"`
	Countries    []store.CountStat `json:"countries"`
	Referers     []store.CountStat `json:"referers"`
	Daily        []store.DailyStat `json:"daily"`
	RecentVisits []model.Visit     `json:"recent_visits"`
}

// LinkService 编排校验、短码生成与存储
type LinkService struct {
	store   *store.LinkStore
	gen     CodeGenerator
	geo     *geoip.Resolver
	baseURL string
	logger  *zap.SugaredLogger
	nowFunc func() time.Time
}

// New 创建链接服务，geo 可为 nil
func New(st *store.LinkStore, gen CodeGenerator, geo *geoip.Resolver, baseURL string, logger *zap.SugaredLogger) *LinkService {
	return &LinkService{
		store:   st,
		gen:     gen,
		geo:     geo,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("link_service"),
		nowFunc: time.Now,
	}
}

// Create 创建短链接
// 自定义短码只尝试一次插入，冲突原样上抛；自动生成则在唯一约束
// 冲突时换码重试，次数有上限。
func (s *LinkService) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := validate.URL(req.URL); err != nil {
		return nil, err
	}
	ttl, err := validate.TTL(req.TTL)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().Unix()
	expiresAt := now + ttl

	if req.Code != "" {
		if err := validate.Code(req.Code); err != nil {
			return nil, err
		}
		if err := s.store.Insert(ctx, req.Code, req.URL, expiresAt, now); err != nil {
			return nil, err
		}
		return s.result(req.Code, req.URL, expiresAt), nil
	}

	for i := 0; i < maxGenerateAttempts; i++ {
		code, err := s.gen.Generate()
		if err != nil {
			return nil, err
		}
		err = s.store.Insert(ctx, code, req.URL, expiresAt, now)
		if err == nil {
			return s.result(code, req.URL, expiresAt), nil
		}
		if !errors.Is(err, store.ErrCodeExists) {
			return nil, err
		}
	}
	return nil, ErrCodeSpaceExhausted
}

func (s *LinkService) result(code, originalURL string, expiresAt int64) *CreateResult {
	return &CreateResult{
		Code:        code,
		ShortURL:    s.baseURL + "/" + code,
		OriginalURL: originalURL,
		ExpiresAt:   expiresAt,
	}
}

// Resolve 解析短码并异步记录一次访问
// 过期行无论是否已被物理清理，一律视为未命中。
func (s *LinkService) Resolve(ctx context.Context, code string, meta store.VisitMeta) (*model.Link, error) {
	link, err := s.store.Lookup(ctx, code, s.nowFunc().Unix())
	if err != nil {
		return nil, err
	}
	s.RecordVisit(code, meta)
	return link, nil
}

// RecordVisit 异步追加访问记录，不阻塞重定向，失败只记日志
func (s *LinkService) RecordVisit(code string, meta store.VisitMeta) {
	visitedAt := s.nowFunc().Unix()
	go func() {
		if meta.IP != "" && (meta.Country == "" && meta.City == "") {
			meta.Country, meta.City = s.geo.Resolve(meta.IP)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.store.RecordVisit(ctx, code, visitedAt, meta); err != nil {
			s.logger.Warnf("记录访问失败: code=%s err=%v", code, err)
		}
	}()
}

// Stats 返回短码的聚合统计，短码不存在或已过期均报未命中
func (s *LinkService) Stats(ctx context.Context, code string) (*Analytics, error) {
	link, err := s.store.Lookup(ctx, code, s.nowFunc().Unix())
	if err != nil {
		return nil, err
	}
	summary, err := s.store.Aggregate(ctx, code)
	if err != nil {
		return nil, err
	}
	return &Analytics{
		Code:         link.Code,
		OriginalURL:  link.OriginalURL,
		CreatedAt:    link.CreatedAt,
		ExpiresAt:    link.ExpiresAt,
		TotalVisits:  summary.TotalVisits,
		Countries:    summary.Countries,
		Referers:     summary.Referers,
		Daily:        summary.Daily,
		RecentVisits: summary.Recent,
	}, nil
}

// Remove 显式删除短链接及其访问记录
func (s *LinkService) Remove(ctx context.Context, code string) error {
	found, err := s.store.Delete(ctx, code)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	return nil
}
