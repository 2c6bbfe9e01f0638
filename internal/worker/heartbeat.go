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

package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/arcctl/actd/internal/db"
	"github.com/arcctl/actd/internal/supervisor"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcessHeartbeat is the liveness row a process keeps in the job database.
// ProcessHeartbeat 是进程在作业数据库中维护的存活记录。
type ProcessHeartbeat struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name       string    `json:"name" gorm:"size:100;not null;uniqueIndex:idx_heartbeat_process"` // 进程名 / Process name
	Site       string    `json:"site" gorm:"size:255;not null;uniqueIndex:idx_heartbeat_process"` // 站点 / Site
	Host       string    `json:"host" gorm:"size:255"`                                            // 主机名 / Hostname
	PID        int       `json:"pid"`                                                             // 进程 PID / Process PID
	Iterations int64     `json:"iterations"`                                                      // 本次启动以来的心跳次数 / Beats since start
	StartedAt  time.Time `json:"started_at"`
	LastSeen   time.Time `json:"last_seen" gorm:"index"`
}

// TableName specifies the table name for ProcessHeartbeat.
// TableName 指定 ProcessHeartbeat 的表名。
func (ProcessHeartbeat) TableName() string {
	return "process_heartbeats"
}

// Heartbeat upserts one ProcessHeartbeat row per iteration.
// Heartbeat 每次迭代更新一条进程心跳记录。
type Heartbeat struct {
	db       *db.Handle
	identity supervisor.Identity
	log      *zap.Logger

	host       string
	pid        int
	startedAt  time.Time
	iterations int64
	now        func() time.Time
}

// NewHeartbeat migrates the heartbeat table and returns the unit.
// NewHeartbeat 迁移心跳表并返回工作单元。
func NewHeartbeat(ctx context.Context, handle *db.Handle, identity supervisor.Identity, log *zap.Logger) (*Heartbeat, error) {
	gdb, err := handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	if err := gdb.AutoMigrate(&ProcessHeartbeat{}); err != nil {
		return nil, fmt.Errorf("failed to migrate %s: %w", ProcessHeartbeat{}.TableName(), err)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Heartbeat{
		db:        handle,
		identity:  identity,
		log:       log,
		host:      host,
		pid:       os.Getpid(),
		startedAt: time.Now(),
		now:       time.Now,
	}, nil
}

// Process writes the current heartbeat. Database errors are returned.
// Process 写入当前心跳，数据库错误直接返回。
func (h *Heartbeat) Process(ctx context.Context) error {
	gdb, err := h.db.DB(ctx)
	if err != nil {
		return err
	}

	h.iterations++
	row := ProcessHeartbeat{
		Name:       h.identity.Name,
		Site:       h.identity.Site,
		Host:       h.host,
		PID:        h.pid,
		Iterations: h.iterations,
		StartedAt:  h.startedAt,
		LastSeen:   h.now(),
	}
	err = gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "site"}},
		DoUpdates: clause.AssignmentColumns([]string{"host", "pid", "iterations", "started_at", "last_seen"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}

	h.log.Debug("heartbeat", zap.Int64("iterations", h.iterations))
	return nil
}

// LatestHeartbeat returns the row for name and site, or ErrHeartbeatNotFound.
// LatestHeartbeat 返回指定进程与站点的心跳记录。
func LatestHeartbeat(ctx context.Context, handle *db.Handle, name, site string) (*ProcessHeartbeat, error) {
	gdb, err := handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	if !gdb.Migrator().HasTable(&ProcessHeartbeat{}) {
		return nil, ErrHeartbeatNotFound
	}

	var hb ProcessHeartbeat
	err = gdb.Where("name = ? AND site = ?", name, site).First(&hb).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHeartbeatNotFound
		}
		return nil, err
	}
	return &hb, nil
}

// ListHeartbeats returns every heartbeat, most recently seen first.
// ListHeartbeats 返回所有心跳记录，按最近时间倒序。
func ListHeartbeats(ctx context.Context, handle *db.Handle) ([]ProcessHeartbeat, error) {
	gdb, err := handle.DB(ctx)
	if err != nil {
		return nil, err
	}

	// No process has written a heartbeat yet.
	if !gdb.Migrator().HasTable(&ProcessHeartbeat{}) {
		return nil, nil
	}

	var rows []ProcessHeartbeat
	if err := gdb.Order("last_seen DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
