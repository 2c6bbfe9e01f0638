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

// Package logging builds the operational and escalation loggers of a process.
// logging 包构建进程的运行日志与升级日志。
//
// Every process writes its own rotated JSON log file. Unexpected failures are
// additionally written to a shared escalation file that operators monitor
// fleet-wide. The escalation file is opened in append mode and never rotated,
// since several processes write to it at once.
// 每个进程写入各自的轮转日志文件；意外故障还会写入全局监控的升级日志。
// 升级日志由多个进程同时写入，因此以追加模式打开且不轮转。
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arcctl/actd/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EscalationName is the file stem of the escalation log.
// EscalationName 是升级日志的文件名前缀。
const EscalationName = "aCTCritical"

// Critical marks an entry as a critical failure.
// Critical 将日志条目标记为严重故障。
var Critical = zap.String("severity", "critical")

// New creates the operational logger for logName, scoped to site. The
// returned closer releases the log file.
// New 为 logName 创建运行日志，并限定在 site 范围内；返回的 closer 释放日志文件。
func New(cfg config.LogConfig, logName, process, site string) (*zap.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureDir(cfg.Dir); err != nil {
		return nil, nil, err
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, logName+".log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	}
	core := jsonCore(zapcore.AddSync(writer), level)
	if cfg.Console {
		console := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			level,
		)
		core = zapcore.NewTee(core, console)
	}

	logger := zap.New(core, zap.AddCaller()).With(
		zap.String("process", process),
		zap.String("site", site),
	)
	return logger, writer, nil
}

// NewEscalation creates the escalation logger. It ignores the configured
// level and only accepts error entries and above.
// NewEscalation 创建升级日志，忽略配置级别，只接收 error 及以上级别。
func NewEscalation(cfg config.LogConfig, site string) (*zap.Logger, io.Closer, error) {
	if err := ensureDir(cfg.Dir); err != nil {
		return nil, nil, err
	}

	sink, closeSink, err := zap.Open(EscalationPath(cfg.Dir))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open escalation log: %w", err)
	}
	logger := zap.New(jsonCore(sink, zapcore.ErrorLevel)).Named("critical").With(zap.String("site", site))
	return logger, closerFunc(closeSink), nil
}

// EscalationPath returns the escalation log file inside dir.
// EscalationPath 返回 dir 中的升级日志文件路径。
func EscalationPath(dir string) string {
	return filepath.Join(dir, EscalationName+".log")
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return nil
}

func jsonCore(sink zapcore.WriteSyncer, level zapcore.LevelEnabler) zapcore.Core {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, level)
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}
