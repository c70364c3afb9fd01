package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"shortlink-platform/internal/model"
)

var (
	// ErrCodeExists 表示同名短码的有效行已存在
	ErrCodeExists = errors.New("短码已存在")
	// ErrNotFound 表示链接不存在或已过期
	ErrNotFound = errors.New("短链接不存在")
)

// recentVisitLimit 聚合结果中最近访问的条数上限
const recentVisitLimit = 10

// VisitMeta 访问记录的附加信息，全部可选
type VisitMeta struct {
	IP        string
	Country   string
	City      string
	UserAgent string
	Referer   string
}

// CountStat 按取值分组的计数
type CountStat struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// DailyStat 按日历日期分组的计数
type DailyStat struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Summary 单个短码的访问聚合结果
type Summary struct {
	TotalVisits int64
	Countries   []CountStat
	Referers    []CountStat
	Daily       []DailyStat
	Recent      []model.Visit
}

// LinkStore 独占 links 与 visits 两张表的读写
type LinkStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *LinkStore {
	return &LinkStore{db: db}
}

// AutoMigrate 建表并创建索引
func (s *LinkStore) AutoMigrate() error {
	return s.db.AutoMigrate(&model.Link{}, &model.Visit{})
}

// Insert 原子地插入一条链接
// 唯一性由主键约束保证，不做"先查再插"。同名的过期残留行在
// 同一事务内连同其访问记录一并清除后重插。
func (s *LinkStore) Insert(ctx context.Context, code, originalURL string, expiresAt, createdAt int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Where("code = ? AND expires_at <= ?", code, createdAt).Delete(&model.Link{})
		if stale.Error != nil {
			return stale.Error
		}
		if stale.RowsAffected > 0 {
			if err := tx.Where("code = ?", code).Delete(&model.Visit{}).Error; err != nil {
				return err
			}
		}

		link := model.Link{
			Code:        code,
			OriginalURL: originalURL,
			ExpiresAt:   expiresAt,
			CreatedAt:   createdAt,
		}
		if err := tx.Create(&link).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrCodeExists
			}
			return err
		}
		return nil
	})
}

// Lookup 按短码查询有效链接，行不存在或已过期均视为未命中
func (s *LinkStore) Lookup(ctx context.Context, code string, now int64) (*model.Link, error) {
	var link model.Link
	err := s.db.WithContext(ctx).
		Where("code = ? AND expires_at > ?", code, now).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &link, nil
}

// DeleteExpired 物理删除所有过期行及其访问记录，返回删除的链接数
func (s *LinkStore) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var codes []string
		if err := tx.Model(&model.Link{}).
			Where("expires_at <= ?", now).
			Pluck("code", &codes).Error; err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		if err := tx.Where("code IN ?", codes).Delete(&model.Visit{}).Error; err != nil {
			return err
		}
		res := tx.Where("expires_at <= ?", now).Delete(&model.Link{})
		if res.Error != nil {
			return res.Error
		}
		count = res.RowsAffected
		return nil
	})
	return count, err
}

// Delete 显式删除一条链接及其访问记录，返回是否存在
func (s *LinkStore) Delete(ctx context.Context, code string) (bool, error) {
	var found bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).Delete(&model.Visit{}).Error; err != nil {
			return err
		}
		res := tx.Where("code = ?", code).Delete(&model.Link{})
		if res.Error != nil {
			return res.Error
		}
		found = res.RowsAffected > 0
		return nil
	})
	return found, err
}

// RecordVisit 追加一条访问记录
// 调用方不应让它的失败影响重定向结果，记录日志即可。
func (s *LinkStore) RecordVisit(ctx context.Context, code string, visitedAt int64, meta VisitMeta) error {
	visit := model.Visit{
		Code:      code,
		VisitedAt: visitedAt,
		IP:        meta.IP,
		Country:   meta.Country,
		City:      meta.City,
		UserAgent: meta.UserAgent,
		Referer:   meta.Referer,
	}
	return s.db.WithContext(ctx).Create(&visit).Error
}

// Aggregate 对单个短码的访问记录做只读聚合
func (s *LinkStore) Aggregate(ctx context.Context, code string) (*Summary, error) {
	db := s.db.WithContext(ctx)
	summary := &Summary{
		Countries: []CountStat{},
		Referers:  []CountStat{},
		Daily:     []DailyStat{},
		Recent:    []model.Visit{},
	}

	if err := db.Model(&model.Visit{}).
		Where("code = ?", code).
		Count(&summary.TotalVisits).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&model.Visit{}).
		Select("country AS value, COUNT(*) AS count").
		Where("code = ?", code).
		Group("country").
		Order("count DESC").
		Scan(&summary.Countries).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&model.Visit{}).
		Select("referer AS value, COUNT(*) AS count").
		Where("code = ?", code).
		Group("referer").
		Order("count DESC").
		Scan(&summary.Referers).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&model.Visit{}).
		Select(s.dateExpr() + " AS date, COUNT(*) AS count").
		Where("code = ?", code).
		Group("date").
		Order("date").
		Scan(&summary.Daily).Error; err != nil {
		return nil, err
	}

	if err := db.Where("code = ?", code).
		Order("visited_at DESC, id DESC").
		Limit(recentVisitLimit).
		Find(&summary.Recent).Error; err != nil {
		return nil, err
	}

	return summary, nil
}

// dateExpr 返回将 Unix 秒转为日历日期的 SQL 表达式，按方言区分
func (s *LinkStore) dateExpr() string {
	if s.db.Dialector.Name() == "mysql" {
		return "DATE(FROM_UNIXTIME(visited_at))"
	}
	return "date(visited_at, 'unixepoch')"
}
