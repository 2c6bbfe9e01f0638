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

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/arcctl/actd/internal/config"
	"github.com/arcctl/actd/internal/credential"
	"github.com/arcctl/actd/internal/db"
	"github.com/arcctl/actd/internal/logging"
	"github.com/arcctl/actd/internal/otel_trace"
	"github.com/arcctl/actd/internal/tlsctx"
	"go.uber.org/zap"
)

// Environment holds every resource a process opens before its loop starts.
// Environment 持有进程在进入主循环前打开的全部资源。
type Environment struct {
	Identity Identity

	// Config is the live source re-read every iteration.
	Config *config.Live

	// Settings are the static values decoded once at startup.
	Settings *config.Config

	Log      *zap.Logger
	Critical *zap.Logger

	JobDB    *db.Handle
	CondorDB *db.Handle

	Credentials *credential.FileStore
	Contexts    *tlsctx.Builder

	// Profile is the default middleware profile. It takes no part in trust
	// decisions.
	Profile tlsctx.Profile

	Tracing *otel_trace.Tracing

	logFiles []io.Closer
}

// Open initializes the environment for identity. Any failure is returned
// and everything opened so far is released; the caller must not start the
// loop.
// Open 初始化进程环境，任一资源打开失败都会释放已打开的资源并返回错误。
func Open(ctx context.Context, identity Identity, configPath string) (env *Environment, err error) {
	if identity.Name == "" {
		return nil, errors.New("process name is required")
	}

	live, err := config.OpenLive(configPath)
	if err != nil {
		return nil, err
	}
	settings, err := live.Settings()
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", live.Path(), err)
	}

	var opened []io.Closer
	defer func() {
		if err == nil {
			return
		}
		for i := len(opened) - 1; i >= 0; i-- {
			_ = opened[i].Close()
		}
	}()

	log, logFile, err := logging.New(settings.Logger, identity.LogName(), identity.Name, identity.Site)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	opened = append(opened, logFile)
	critical, criticalFile, err := logging.NewEscalation(settings.Logger, identity.Site)
	if err != nil {
		return nil, fmt.Errorf("failed to open escalation log: %w", err)
	}
	opened = append(opened, criticalFile)

	jobDB, err := db.Open("db", settings.JobDB, log)
	if err != nil {
		return nil, err
	}
	opened = append(opened, jobDB)

	condorDB, err := db.Open("condordb", settings.CondorDB, log)
	if err != nil {
		return nil, err
	}
	opened = append(opened, condorDB)

	tracing, err := otel_trace.Init(ctx, settings.Telemetry, identity.Name)
	if err != nil {
		return nil, err
	}

	store := credential.NewFileStore(settings.ProxyStoreDir())
	env = &Environment{
		Identity:    identity,
		Config:      live,
		Settings:    settings,
		Log:         log,
		Critical:    critical,
		JobDB:       jobDB,
		CondorDB:    condorDB,
		Credentials: store,
		Contexts:    tlsctx.NewBuilder(store),
		Profile:     tlsctx.DefaultProfile(settings),
		Tracing:     tracing,
		logFiles:    []io.Closer{logFile, criticalFile},
	}

	log.Info(fmt.Sprintf("Started %s for site %s", identity.Name, identity.Site),
		zap.String("config", live.Path()),
		zap.String("proxy_store", store.Dir()),
		zap.Bool("tracing", tracing.IsEnabled()),
	)
	return env, nil
}

// NewSupervisor creates the supervisor for work. Finish closes the job
// database, the condor database and the tracing exporter in that order, then
// the log files.
// NewSupervisor 创建 Supervisor，Finish 依次关闭作业库、condor 库与追踪导出器，最后关闭日志文件。
func (e *Environment) NewSupervisor(work WorkUnit, opts ...Option) *Supervisor {
	base := []Option{
		WithHandles(e.JobDB, e.CondorDB, e.Tracing),
		WithTracer(e.Tracing.Tracer()),
		WithLogFiles(e.logFiles...),
	}
	return New(e.Identity, e.Config, e.Log, e.Critical, work, append(base, opts...)...)
}

// Close releases the environment without going through a Supervisor. It is
// meant for startup paths that fail after Open returned.
// Close 在未创建 Supervisor 时释放环境资源，用于 Open 之后的启动失败路径。
func (e *Environment) Close() error {
	err := errors.Join(e.JobDB.Close(), e.CondorDB.Close(), e.Tracing.Close())
	_ = e.Critical.Sync()
	_ = e.Log.Sync()
	for _, f := range e.logFiles {
		err = errors.Join(err, f.Close())
	}
	return err
}
