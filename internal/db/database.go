/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package db opens the database handles owned by a process.
// db 包负责打开进程独占的数据库句柄。
package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arcctl/actd/internal/config"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// ErrClosed is returned by DB after the handle has been closed.
// ErrClosed 表示句柄已关闭。
var ErrClosed = errors.New("db: handle is closed")

// Handle is a named database connection closed exactly once.
// Handle 是一个只会被关闭一次的具名数据库连接。
type Handle struct {
	name string
	db   *gorm.DB

	once     sync.Once
	closeErr error

	mu     sync.RWMutex
	closed bool
}

// Open connects to the database described by cfg.
// Open 根据配置连接数据库，支持 SQLite、MySQL、PostgreSQL。
func Open(name string, cfg config.DatabaseConfig, log *zap.Logger) (*Handle, error) {
	dbType := cfg.Type
	if dbType == "" {
		dbType = config.DatabaseTypeSQLite
	}

	var (
		dialector gorm.Dialector
		err       error
	)
	switch dbType {
	case config.DatabaseTypeSQLite:
		dialector, err = sqliteDialector(cfg.SQLitePath)
	case config.DatabaseTypeMySQL:
		dialector = mysqlDialector(cfg)
	case config.DatabaseTypePostgres:
		dialector = postgresDialector(cfg)
	default:
		return nil, fmt.Errorf("[%s] unsupported database type: %s, supported: sqlite, mysql, postgres", name, dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] failed to init %s dialector: %w", name, dbType, err)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] failed to connect %s database: %w", name, dbType, err)
	}

	if err := gdb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		log.Warn("failed to install tracing plugin", zap.String("db", name), zap.Error(err))
	}

	if dbType != config.DatabaseTypeSQLite {
		if err := configurePool(gdb, cfg); err != nil {
			return nil, fmt.Errorf("[%s] failed to configure connection pool: %w", name, err)
		}
	}

	log.Info("database connected", zap.String("db", name), zap.String("type", dbType))
	return &Handle{name: name, db: gdb}, nil
}

// Name returns the handle name used in logs.
func (h *Handle) Name() string {
	return h.name
}

// DB returns the connection bound to ctx.
// DB 返回绑定上下文的连接。
func (h *Handle) DB(ctx context.Context) (*gorm.DB, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, fmt.Errorf("%w: %s", ErrClosed, h.name)
	}
	return h.db.WithContext(ctx), nil
}

// Close releases the underlying connection pool. Only the first call has an
// effect; later calls return the first result.
// Close 释放底层连接池，只有第一次调用生效。
func (h *Handle) Close() error {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		sqlDB, err := h.db.DB()
		if err != nil {
			h.closeErr = fmt.Errorf("[%s] failed to get underlying connection: %w", h.name, err)
			return
		}
		h.closeErr = sqlDB.Close()
	})
	return h.closeErr
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func sqliteDialector(sqlitePath string) (gorm.Dialector, error) {
	if sqlitePath == "" {
		return nil, errors.New("sqlite path is empty")
	}

	// Ensure the directory exists / 确保目录存在
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}
	return sqlite.Open(sqlitePath), nil
}

func mysqlDialector(cfg config.DatabaseConfig) gorm.Dialector {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
	return mysql.Open(dsn)
}

func postgresDialector(cfg config.DatabaseConfig) gorm.Dialector {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)
	return postgres.Open(dsn)
}

func configurePool(gdb *gorm.DB, cfg config.DatabaseConfig) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	return nil
}

// gormLogger maps the configured level onto the GORM logger
// gormLogger 根据配置获取 GORM 日志记录器
func gormLogger(level string) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "silent":
		logLevel = logger.Silent
	case "error":
		logLevel = logger.Error
	case "info":
		logLevel = logger.Info
	default:
		logLevel = logger.Warn
	}
	return logger.Default.LogMode(logLevel)
}
