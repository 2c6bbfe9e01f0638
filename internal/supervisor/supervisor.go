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

// Package supervisor provides the lifecycle harness shared by every aCT
// process: configuration reload, site downtime, periodic restart, interrupt
// handling, crash escalation and cleanup.
// supervisor 包提供所有 aCT 进程共享的生命周期框架：配置重载、站点停机、
// 周期重启、中断处理、崩溃上报与清理。
//
// One Supervisor drives one process with a single control flow. Running
// several sites means running several processes.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/arcctl/actd/internal/logging"
	"github.com/arcctl/actd/internal/restart"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Poll delay bounds. Each eligible iteration waits MinPollDelay plus a
// uniform share of PollJitter before running the work unit.
// 轮询延迟范围，每次迭代在执行工作前等待 [5s, 10s) 的随机时间。
const (
	MinPollDelay = 5 * time.Second
	PollJitter   = 5 * time.Second
)

// ConfigSource is the live configuration consulted on every iteration.
// ConfigSource 是每次迭代都会读取的实时配置。
type ConfigSource interface {
	// Parse re-reads the backing store. On failure the previous snapshot
	// stays in effect.
	Parse() error
	Get(path ...string) string
	GetList(path ...string) []string
}

// WorkUnit is the process-specific work run once per eligible iteration.
// It must be safe to call repeatedly and should return promptly; an error
// ends the loop through the crash path.
// WorkUnit 是每次迭代执行一次的进程特定工作，返回错误将进入崩溃路径。
type WorkUnit interface {
	Process(ctx context.Context) error
}

// WorkFunc adapts a function to WorkUnit.
type WorkFunc func(ctx context.Context) error

// Process calls f.
func (f WorkFunc) Process(ctx context.Context) error {
	return f(ctx)
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithHandles registers resources closed by Finish, in order.
func WithHandles(handles ...io.Closer) Option {
	return func(s *Supervisor) {
		s.handles = append(s.handles, handles...)
	}
}

// WithLogFiles registers log files closed by Finish after the final log
// entries are flushed.
// WithLogFiles 注册日志文件，Finish 在刷新最后的日志后关闭它们。
func WithLogFiles(files ...io.Closer) Option {
	return func(s *Supervisor) {
		s.logFiles = append(s.logFiles, files...)
	}
}

// WithTracer sets the tracer used for iteration spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Supervisor) {
		s.tracer = tracer
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

// WithSleep replaces the interruptible sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Supervisor) {
		s.sleep = sleep
	}
}

// WithJitter replaces the poll delay sampler.
func WithJitter(jitter func() time.Duration) Option {
	return func(s *Supervisor) {
		s.jitter = jitter
	}
}

// WithExit replaces the process termination primitive.
func WithExit(exit func(code int)) Option {
	return func(s *Supervisor) {
		s.exit = exit
	}
}

// Supervisor owns the main loop of a process.
// Supervisor 持有进程的主循环。
type Supervisor struct {
	identity Identity
	config   ConfigSource
	log      *zap.Logger
	critical *zap.Logger
	work     WorkUnit
	tracer   trace.Tracer
	handles  []io.Closer
	logFiles []io.Closer

	startTime time.Time
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func() time.Duration
	exit      func(code int)

	// inDowntime only drives the resume log line; the downtime decision
	// itself is recomputed from the configuration on every iteration.
	inDowntime bool

	finishOnce sync.Once
}

// New creates a Supervisor. The start time used by the restart policy is
// taken here.
// New 创建 Supervisor，并在此记录用于周期重启的启动时间。
func New(identity Identity, src ConfigSource, log, critical *zap.Logger, work WorkUnit, opts ...Option) *Supervisor {
	s := &Supervisor{
		identity: identity,
		config:   src,
		log:      log,
		critical: critical,
		work:     work,
		tracer:   noop.NewTracerProvider().Tracer("noop"),
		now:      time.Now,
		sleep:    sleepContext,
		jitter:   Jitter,
		exit:     os.Exit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startTime = s.now()
	return s
}

// Identity returns the process identity.
func (s *Supervisor) Identity() Identity {
	return s.identity
}

// StartTime returns when the supervisor was constructed.
func (s *Supervisor) StartTime() time.Time {
	return s.startTime
}

// Run executes the main loop until a periodic restart, an interrupt (ctx
// cancellation) or an unexpected failure, and returns which one it was.
// Run never panics.
// Run 执行主循环，直到周期重启、中断或意外故障，并返回结束原因。
func (s *Supervisor) Run(ctx context.Context) Outcome {
	for {
		res := s.runIteration(ctx)
		switch res.Outcome {
		case OutcomeContinue:
			continue
		case OutcomeRestart:
			s.log.Info(fmt.Sprintf("%s for %s exited for periodic restart", s.identity.Name, s.identity.Site))
		case OutcomeInterrupted:
			s.log.Info("Received interrupt, exiting", zap.NamedError("reason", res.Err))
		case OutcomeCrashed:
			s.reportCrash(res)
		}
		return res.Outcome
	}
}

// Finish releases every registered handle exactly once, syncs the logs and
// terminates the process with status 0. Deferred functions of the caller do
// not run; everything that must happen before exit belongs in a handle.
// Finish 只关闭一次已注册的句柄，同步日志后以状态 0 立即退出进程。
func (s *Supervisor) Finish() {
	s.finishOnce.Do(s.cleanup)
	s.exit(0)
}

func (s *Supervisor) cleanup() {
	for _, h := range s.handles {
		if h == nil {
			continue
		}
		if err := h.Close(); err != nil {
			s.log.Warn("failed to close handle", zap.Error(err))
		}
	}
	s.log.Info(fmt.Sprintf("Cleanup for site %s", s.identity.Site))
	_ = s.critical.Sync()
	_ = s.log.Sync()
	for _, f := range s.logFiles {
		if f != nil {
			_ = f.Close()
		}
	}
}

func (s *Supervisor) runIteration(ctx context.Context) (res Result) {
	ctx, span := s.tracer.Start(ctx, "supervisor.iteration", trace.WithAttributes(
		attribute.String("act.process", s.identity.Name),
		attribute.String("act.site", s.identity.Site),
	))
	defer func() {
		span.SetAttributes(
			attribute.String("act.outcome", res.Outcome.String()),
			attribute.Bool("act.downtime", s.inDowntime),
		)
		if res.Outcome == OutcomeCrashed {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
	}()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Outcome: OutcomeCrashed, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()

	return s.iterate(ctx)
}

// iterate runs one pass: reload, downtime check, sleep and work, restart check.
func (s *Supervisor) iterate(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Result{Outcome: OutcomeInterrupted, Err: err}
	}

	if err := s.config.Parse(); err != nil {
		s.log.Warn("failed to parse configuration, keeping previous snapshot", zap.Error(err))
	}

	if s.siteInDowntime() {
		if !s.inDowntime {
			s.inDowntime = true
			s.log.Debug("site is in downtime, skipping work")
		}
	} else {
		if s.inDowntime {
			s.inDowntime = false
			s.log.Info(fmt.Sprintf("Site %s is out of downtime, resuming work", s.identity.Site))
		}
		if err := s.sleep(ctx, s.jitter()); err != nil {
			return classify(ctx, err)
		}
		if err := s.work.Process(ctx); err != nil {
			return classify(ctx, err)
		}
	}

	interval, err := restart.Interval(s.config, s.identity.Name)
	if err != nil {
		return Result{Outcome: OutcomeCrashed, Err: err}
	}
	if restart.Due(interval, s.now().Sub(s.startTime)) {
		return Result{Outcome: OutcomeRestart}
	}
	return Result{Outcome: OutcomeContinue}
}

// siteInDowntime tests the scoped site against the current downtime list.
// A process without a site is never in downtime.
func (s *Supervisor) siteInDowntime() bool {
	if s.identity.Site == "" {
		return false
	}
	return slices.Contains(s.config.GetList("downtime", "item"), s.identity.Site)
}

// reportCrash writes the failure to both logs. It must not panic.
func (s *Supervisor) reportCrash(res Result) {
	defer func() {
		_ = recover()
	}()

	// Only a recovered panic carries the frames of the failing code.
	fields := []zap.Field{logging.Critical, zap.Error(res.Err)}
	if res.Stack != nil {
		fields = append(fields, zap.String("stack", string(res.Stack)))
	}

	s.log.Error("*** Unexpected exception! ***", fields...)
	s.log.Error("*** Process exiting ***", logging.Critical)
	s.critical.Error("*** Unexpected exception! ***", append(fields, zap.String("process", s.identity.Name))...)
}

// classify separates cooperative cancellation from other failures. Once ctx
// is done any error counts as an interrupt, whatever its type.
// classify 区分协作取消与其他故障；ctx 结束后任何错误都视为中断。
func classify(ctx context.Context, err error) Result {
	if ctx.Err() != nil {
		return Result{Outcome: OutcomeInterrupted, Err: err}
	}
	return Result{Outcome: OutcomeCrashed, Err: err}
}

// Jitter samples a poll delay uniformly from [MinPollDelay, MinPollDelay+PollJitter).
// Jitter 在 [5s, 10s) 内均匀采样轮询延迟，避免整个集群同时轮询。
func Jitter() time.Duration {
	return jitterFrom(rand.Float64)
}

func jitterFrom(sample func() float64) time.Duration {
	return MinPollDelay + time.Duration(sample()*float64(PollJitter))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
