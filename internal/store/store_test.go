package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shortlink-platform/internal/model"
)

// newTestStore 基于内存 SQLite 初始化一个干净的存储
func newTestStore(t *testing.T) *LinkStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("无法连接到内存数据库: %v", err)
	}
	// 串行化连接，避免共享缓存模式下的写锁竞争干扰测试
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	s := New(db)
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return s
}

func TestInsertAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Insert(ctx, "abc123", "https://example.com", 2000, 1000)
	assert.NoError(t, err)

	link, err := s.Lookup(ctx, "abc123", 1500)
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com", link.OriginalURL)
	assert.Equal(t, int64(2000), link.ExpiresAt)
	assert.Equal(t, int64(1000), link.CreatedAt)

	_, err = s.Lookup(ctx, "missing", 1500)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupExpiredRowIsMiss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.Insert(ctx, "abc123", "https://example.com", 2000, 1000))

	// 行仍然物理存在，但过了 expires_at 就必须视为未命中
	_, err := s.Lookup(ctx, "abc123", 2000)
	assert.ErrorIs(t, err, ErrNotFound, "expires_at == now 时应未命中")
	_, err = s.Lookup(ctx, "abc123", 3000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertDuplicateLiveCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.Insert(ctx, "my-code", "https://example.com", 2000, 1000))
	err := s.Insert(ctx, "my-code", "https://other.com", 3000, 1100)
	assert.ErrorIs(t, err, ErrCodeExists)

	// 原有行不受影响
	link, err := s.Lookup(ctx, "my-code", 1500)
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com", link.OriginalURL)
}

func TestInsertReplacesExpiredRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.Insert(ctx, "reuse", "https://old.example.com", 2000, 1000))
	assert.NoError(t, s.RecordVisit(ctx, "reuse", 1500, VisitMeta{Country: "CN"}))

	// 在过期残留行之上插入应成功，并替换旧行
	err := s.Insert(ctx, "reuse", "https://new.example.com", 9000, 5000)
	assert.NoError(t, err, "插入过期残留行之上应被允许")

	link, err := s.Lookup(ctx, "reuse", 6000)
	assert.NoError(t, err)
	assert.Equal(t, "https://new.example.com", link.OriginalURL)

	// 旧行的访问记录应随替换被清除
	summary, err := s.Aggregate(ctx, "reuse")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), summary.TotalVisits)
}

func TestDeleteExpiredCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.Insert(ctx, "dead1", "https://a.example.com", 2000, 1000))
	assert.NoError(t, s.Insert(ctx, "dead2", "https://b.example.com", 2500, 1000))
	assert.NoError(t, s.Insert(ctx, "alive", "https://c.example.com", 9000, 1000))
	assert.NoError(t, s.RecordVisit(ctx, "dead1", 1500, VisitMeta{}))
	assert.NoError(t, s.RecordVisit(ctx, "alive", 1500, VisitMeta{}))

	count, err := s.DeleteExpired(ctx, 3000)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// 存活行不受影响
	_, err = s.Lookup(ctx, "alive", 3000)
	assert.NoError(t, err)

	// 过期行的访问记录级联删除，存活行的保留
	var visits []model.Visit
	assert.NoError(t, s.db.Find(&visits).Error)
	assert.Len(t, visits, 1)
	assert.Equal(t, "alive", visits[0].Code)

	// 无事可做时返回 0
	count, err = s.DeleteExpired(ctx, 3000)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDeleteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.Insert(ctx, "gone", "https://example.com", 9000, 1000))
	assert.NoError(t, s.RecordVisit(ctx, "gone", 1500, VisitMeta{}))

	found, err := s.Delete(ctx, "gone")
	assert.NoError(t, err)
	assert.True(t, found)

	_, err = s.Lookup(ctx, "gone", 1500)
	assert.ErrorIs(t, err, ErrNotFound)

	var visitCount int64
	assert.NoError(t, s.db.Model(&model.Visit{}).Count(&visitCount).Error)
	assert.Equal(t, int64(0), visitCount)

	found, err = s.Delete(ctx, "gone")
	assert.NoError(t, err)
	assert.False(t, found, "重复删除应返回不存在")
}

func TestAggregate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.Insert(ctx, "stats", "https://example.com", 99999999999, 1000))

	// 2024-01-01 与 2024-01-02 两天的访问
	day1 := int64(1704067200)
	day2 := day1 + 86400
	visits := []struct {
		at      int64
		country string
		referer string
	}{
		{day1 + 10, "CN", "https://a.example.com"},
		{day1 + 20, "CN", "https://a.example.com"},
		{day1 + 30, "US", "https://b.example.com"},
		{day2 + 10, "CN", ""},
	}
	for _, v := range visits {
		assert.NoError(t, s.RecordVisit(ctx, "stats", v.at, VisitMeta{Country: v.country, Referer: v.referer}))
	}

	summary, err := s.Aggregate(ctx, "stats")
	assert.NoError(t, err)
	assert.Equal(t, int64(4), summary.TotalVisits)

	// 国家分组按计数降序
	assert.Equal(t, "CN", summary.Countries[0].Value)
	assert.Equal(t, int64(3), summary.Countries[0].Count)

	// 按日历日期分桶
	assert.Len(t, summary.Daily, 2)
	assert.Equal(t, "2024-01-01", summary.Daily[0].Date)
	assert.Equal(t, int64(3), summary.Daily[0].Count)
	assert.Equal(t, "2024-01-02", summary.Daily[1].Date)
	assert.Equal(t, int64(1), summary.Daily[1].Count)

	// 最近访问按时间降序
	assert.Len(t, summary.Recent, 4)
	assert.Equal(t, day2+10, summary.Recent[0].VisitedAt)

	// 无新访问时多次聚合结果一致
	again, err := s.Aggregate(ctx, "stats")
	assert.NoError(t, err)
	assert.Equal(t, summary, again)
}

func TestAggregateRecentCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, s.Insert(ctx, "busy", "https://example.com", 99999999999, 1000))
	for i := int64(0); i < 25; i++ {
		assert.NoError(t, s.RecordVisit(ctx, "busy", 2000+i, VisitMeta{}))
	}

	summary, err := s.Aggregate(ctx, "busy")
	assert.NoError(t, err)
	assert.Equal(t, int64(25), summary.TotalVisits)
	assert.Len(t, summary.Recent, recentVisitLimit)
	assert.Equal(t, int64(2024), summary.Recent[0].VisitedAt, "最近访问应从最新一条开始")
}

func TestAggregateEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	summary, err := s.Aggregate(ctx, "nothing")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), summary.TotalVisits)
	assert.Empty(t, summary.Countries)
	assert.Empty(t, summary.Daily)
	assert.Empty(t, summary.Recent)
}
