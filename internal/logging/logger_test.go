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

package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arcctl/actd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogConfig(t *testing.T, level string) config.LogConfig {
	t.Helper()
	return config.LogConfig{
		Level:      level,
		Dir:        filepath.Join(t.TempDir(), "log"),
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	}
}

// TestNewWritesScopedFile tests that the operational log is scoped to process and site
// TestNewWritesScopedFile 测试运行日志带有进程与站点字段
func TestNewWritesScopedFile(t *testing.T) {
	cfg := testLogConfig(t, "info")

	logger, closer, err := New(cfg, "aCTSubmitter-siteA.example.org", "aCTSubmitter", "https://siteA.example.org:443/arex")
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	logger.Debug("hidden below level")
	logger.Info("Started aCTSubmitter")
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(cfg.Dir, "aCTSubmitter-siteA.example.org.log"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Started aCTSubmitter")
	assert.Contains(t, content, `"process":"aCTSubmitter"`)
	assert.Contains(t, content, `"site":"https://siteA.example.org:443/arex"`)
	assert.NotContains(t, content, "hidden below level")
}

// TestNewRejectsBadLevel tests level validation
// TestNewRejectsBadLevel 测试日志级别校验
func TestNewRejectsBadLevel(t *testing.T) {
	logger, closer, err := New(testLogConfig(t, "loud"), "aCTFetcher", "aCTFetcher", "")
	assert.Error(t, err)
	assert.Nil(t, logger)
	assert.Nil(t, closer)
}

// TestEscalationOnlyKeepsErrors tests the escalation log filter
// TestEscalationOnlyKeepsErrors 测试升级日志只保留错误级别
func TestEscalationOnlyKeepsErrors(t *testing.T) {
	cfg := testLogConfig(t, "debug")

	critical, closer, err := NewEscalation(cfg, "siteA")
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	critical.Info("routine message")
	critical.Error("*** Unexpected exception! ***", Critical, zap.Error(errors.New("boom")))
	_ = critical.Sync()

	data, err := os.ReadFile(EscalationPath(cfg.Dir))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Unexpected exception")
	assert.Contains(t, content, `"severity":"critical"`)
	assert.Contains(t, content, `"logger":"critical"`)
	assert.NotContains(t, content, "routine message")
}

// TestEscalationSharedBetweenProcesses tests that two escalation loggers
// appending to the same directory keep each other's entries
// TestEscalationSharedBetweenProcesses 测试两个升级日志写入同一目录时互不覆盖
func TestEscalationSharedBetweenProcesses(t *testing.T) {
	cfg := testLogConfig(t, "info")

	submitter, submitterCloser, err := NewEscalation(cfg, "siteA")
	require.NoError(t, err)
	fetcher, fetcherCloser, err := NewEscalation(cfg, "siteB")
	require.NoError(t, err)

	submitter.Error("submitter crashed", Critical, zap.String("process", "aCTSubmitter"))
	fetcher.Error("fetcher crashed", Critical, zap.String("process", "aCTFetcher"))
	submitter.Error("submitter crashed again", Critical, zap.String("process", "aCTSubmitter"))
	_ = submitter.Sync()
	_ = fetcher.Sync()
	require.NoError(t, submitterCloser.Close())
	require.NoError(t, fetcherCloser.Close())

	data, err := os.ReadFile(EscalationPath(cfg.Dir))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "submitter crashed")
	assert.Contains(t, lines[1], "fetcher crashed")
	assert.Contains(t, lines[2], "submitter crashed again")
	assert.Contains(t, lines[1], `"site":"siteB"`)

	// Reopening appends rather than truncating.
	again, againCloser, err := NewEscalation(cfg, "siteC")
	require.NoError(t, err)
	again.Error("third process crashed", Critical)
	_ = again.Sync()
	require.NoError(t, againCloser.Close())

	data, err = os.ReadFile(EscalationPath(cfg.Dir))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 4)
}

// TestNewCloserReleasesFile tests that the operational log file is released
// TestNewCloserReleasesFile 测试 closer 释放运行日志文件
func TestNewCloserReleasesFile(t *testing.T) {
	cfg := testLogConfig(t, "info")
	logger, closer, err := New(cfg, "aCTFetcher", "aCTFetcher", "siteA")
	require.NoError(t, err)
	logger.Info("before close")
	require.NoError(t, closer.Close())

	path := filepath.Join(cfg.Dir, "aCTFetcher.log")
	assert.Zero(t, openDescriptors(t, path))
}

func openDescriptors(t *testing.T, path string) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("descriptor table not available:", err)
	}
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		path = filepath.Join(resolved, filepath.Base(path))
	}
	count := 0
	for _, entry := range entries {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", entry.Name()))
		if err == nil && target == path {
			count++
		}
	}
	return count
}
