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

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// ErrParse reports a configuration file that could not be read or parsed.
// The previous snapshot stays authoritative when it is returned.
// ErrParse 表示配置文件无法读取或解析，此时保留上一次的快照。
var ErrParse = errors.New("config: parse failed")

// Live is a hot-reloadable view of the configuration file.
// Live 是配置文件的可热加载视图。
//
// Each Parse reads the file into a fresh viper instance and swaps it in only
// when the read succeeds, so readers never observe a half-applied file.
type Live struct {
	path string

	mu       sync.RWMutex
	snapshot *viper.Viper
}

// OpenLive resolves the configuration path and performs the initial parse.
// A failure here is fatal for the caller.
// OpenLive 解析配置路径并执行首次解析，失败对调用方是致命的。
func OpenLive(configPath string) (*Live, error) {
	l := &Live{path: resolvePath(configPath)}
	if err := l.Parse(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the file backing this source.
func (l *Live) Path() string {
	return l.path
}

// Parse re-reads the backing file.
// Parse 重新读取配置文件。
func (l *Live) Parse() error {
	v := newViper(l.path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParse, l.path, err)
	}

	l.mu.Lock()
	l.snapshot = v
	l.mu.Unlock()
	return nil
}

// Get returns the value at path as a string, or "" when absent.
// Get 返回路径对应的字符串值，不存在时返回空字符串。
func (l *Live) Get(path ...string) string {
	v := l.current()
	if v == nil {
		return ""
	}
	return v.GetString(joinKey(path))
}

// GetList returns the ordered values at path. A scalar is returned as a
// single-element list.
// GetList 返回路径对应的有序列表，标量值作为单元素列表返回。
func (l *Live) GetList(path ...string) []string {
	v := l.current()
	if v == nil {
		return nil
	}
	key := joinKey(path)
	if !v.IsSet(key) {
		return nil
	}
	values := v.GetStringSlice(key)
	if len(values) == 0 {
		if s := v.GetString(key); s != "" {
			return []string{s}
		}
	}
	return values
}

// Settings decodes the current snapshot into Config.
// Settings 将当前快照解析为 Config。
func (l *Live) Settings() (*Config, error) {
	v := l.current()
	if v == nil {
		return nil, fmt.Errorf("%w: no snapshot loaded", ErrParse)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (l *Live) current() *viper.Viper {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

func joinKey(path []string) string {
	return strings.ToLower(strings.Join(path, "."))
}
