package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// InitSQLite 打开（必要时创建）本地 SQLite 数据库
// TranslateError 开启后，唯一约束冲突会被翻译成 gorm.ErrDuplicatedKey，
// 存储层依赖这一点实现原子的"插入或冲突"语义。
func InitSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	connection, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	// SQLite 并发与一致性设置
	connection.Exec("PRAGMA journal_mode = WAL")
	connection.Exec("PRAGMA busy_timeout = 5000")
	connection.Exec("PRAGMA foreign_keys = ON")

	return connection, nil
}

// InitMySQL 连接 MySQL，driver 配置为 mysql 时使用
func InitMySQL(host string, port int, user, password, dbName string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbName)

	connection, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	return connection, nil
}
