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

// Package worker provides the built-in work units an actd process can run
// and the registry used to select one by name.
// worker 包提供 actd 进程内置的工作单元，以及按名称选择单元的注册表。
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/arcctl/actd/internal/supervisor"
	"github.com/arcctl/actd/internal/tlsctx"
	"go.uber.org/zap"
)

// Error definitions for worker package.
// worker 包的错误定义。
var (
	// ErrUnknownUnit indicates no work unit is registered under the name.
	// ErrUnknownUnit 表示该名称下没有注册工作单元。
	ErrUnknownUnit = errors.New("unknown work unit / 未知的工作单元")

	// ErrHeartbeatNotFound indicates no heartbeat row exists for the process.
	// ErrHeartbeatNotFound 表示进程没有心跳记录。
	ErrHeartbeatNotFound = errors.New("heartbeat not found / 心跳记录未找到")

	// ErrCheckCredential indicates check.proxyid is missing or malformed.
	// ErrCheckCredential 表示 check.proxyid 缺失或格式错误。
	ErrCheckCredential = errors.New("invalid check.proxyid / check.proxyid 无效")
)

// Factory builds a work unit from an opened environment.
// Factory 基于已打开的环境构建工作单元。
type Factory func(ctx context.Context, env *supervisor.Environment) (supervisor.WorkUnit, error)

var factories = map[string]Factory{
	"heartbeat": func(ctx context.Context, env *supervisor.Environment) (supervisor.WorkUnit, error) {
		return NewHeartbeat(ctx, env.JobDB, env.Identity, env.Log)
	},
	"check": newCheckUnit,
}

// newCheckUnit wires the endpoint checker to the environment. With
// check.trustcacertdir set, servers are verified against voms.cacertdir.
func newCheckUnit(ctx context.Context, env *supervisor.Environment) (supervisor.WorkUnit, error) {
	contexts := env.Contexts
	if env.Settings != nil && env.Settings.Check.TrustCACertDir {
		roots, err := tlsctx.LoadCACertDir(env.Profile.CACertDir)
		if err != nil {
			return nil, err
		}
		contexts = contexts.WithRoots(roots)
		env.Log.Info("endpoint check trusts CA directory", zap.String("cacertdir", env.Profile.CACertDir))
	}
	return NewChecker(env.Config, contexts, env.Profile.Timeout, env.Log), nil
}

// New builds the work unit registered under name.
// New 构建 name 对应的工作单元。
func New(ctx context.Context, name string, env *supervisor.Environment) (supervisor.WorkUnit, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownUnit, name, Names())
	}
	return factory(ctx, env)
}

// Names lists the registered work units in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
