package database

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库连接
// dsn: postgres:// 或 host=... 走 PostgreSQL，其余按 SQLite 文件路径处理 (":memory:" 用于测试)
// models: 需要自动建表/迁移的结构体指针
func InitDB(dsn string, debug bool, log *zap.Logger, models ...interface{}) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	// 开发环境下打印所有 SQL，方便调试
	dbLogger := logger.Default.LogMode(logger.Silent)
	if debug {
		dbLogger = logger.Default.LogMode(logger.Info)
	}

	driver := Driver(dsn)
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败 (%s): %w", driver, err)
	}

	// 获取底层的 sqlDB 对象，用于设置连接池参数
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 SQL DB 失败: %w", err)
	}

	if driver == "postgres" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	} else {
		// SQLite 单写者
		sqlDB.SetMaxOpenConns(1)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("数据库连接成功", zap.String("driver", driver))

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("自动建表出错: %w", err)
		}
	}

	return db, nil
}

// Driver 根据 DSN 判断驱动
func Driver(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") || strings.HasPrefix(d, "host=") {
		return "postgres"
	}
	return "sqlite"
}
