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

// Package main is the entry point for actd.
// main 包是 actd 的入口点。
//
// One actd process runs one work unit for at most one site:
// 每个 actd 进程针对至多一个站点运行一个工作单元：
// - Re-reads the shared configuration every iteration / 每次迭代重新读取共享配置
// - Skips work while its site is in downtime / 站点停机期间跳过工作
// - Exits for periodic restart, on SIGINT/SIGTERM/SIGHUP or on a crash / 周期重启、收到信号或崩溃时退出
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/arcctl/actd/internal/config"
	"github.com/arcctl/actd/internal/db"
	"github.com/arcctl/actd/internal/supervisor"
	"github.com/arcctl/actd/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// rootCmd is the root command for the actd CLI
// rootCmd 是 actd CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "actd [site]",
	Short: "actd - supervised worker process for the aCT fleet",
	Long: `actd runs one work unit in a supervised loop.
actd 在受监督的循环中运行一个工作单元。

The optional site argument (URL or hostname) scopes logging and the
downtime check to that site.
可选的 site 参数（URL 或主机名）将日志与停机检查限定到该站点。`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runProcess,
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "actd\n")
		fmt.Fprintf(out, "  Version:    %s\n", Version)
		fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "  Go Version: %s\n", runtime.Version())
		fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// statusCmd lists the heartbeats recorded in the job database, or the one of
// a single process when --name is given
// statusCmd 列出作业数据库中记录的心跳，指定 --name 时只显示单个进程
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List process heartbeats / 列出进程心跳",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var (
	// configFile is the path to the configuration file
	// configFile 是配置文件的路径
	configFile string

	// processName keys the restart policy and the log file
	// processName 用于周期重启配置与日志文件名
	processName string

	// unitName selects the built-in work unit
	// unitName 选择内置工作单元
	unitName string

	// statusName and statusSite select a single heartbeat
	// statusName 与 statusSite 用于查询单个心跳
	statusName string
	statusSite string

	// supervisorOptions are appended when the supervisor is built.
	supervisorOptions []supervisor.Option
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: $ACT_CONFIG_PATH or "+config.DefaultConfigPath+")")
	rootCmd.Flags().StringVarP(&processName, "name", "n", supervisor.NameFromExecutable(os.Args[0]), "process name")
	rootCmd.Flags().StringVarP(&unitName, "unit", "u", "heartbeat", fmt.Sprintf("work unit to run %v", worker.Names()))

	statusCmd.Flags().StringVarP(&statusName, "name", "n", "", "only show the process with this name")
	statusCmd.Flags().StringVarP(&statusSite, "site", "s", "", "site of the process selected by --name")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}

// runProcess opens the environment, runs the loop and finishes. Startup
// errors are returned; once the loop has run the process always exits 0.
// runProcess 打开环境、运行主循环并结束，启动错误直接返回，进入循环后总以 0 退出。
func runProcess(cmd *cobra.Command, args []string) error {
	var site string
	if len(args) == 1 {
		site = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	env, err := supervisor.Open(ctx, supervisor.NewIdentity(processName, site), configFile)
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", processName, err)
	}

	unit, err := worker.New(ctx, unitName, env)
	if err != nil {
		env.Log.Error("failed to build work unit", zap.String("unit", unitName), zap.Error(err))
		_ = env.Close()
		return err
	}

	s := env.NewSupervisor(unit, supervisorOptions...)
	s.Run(ctx)
	stop()
	s.Finish()
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	handle, err := db.Open("db", cfg.JobDB, zap.NewNop())
	if err != nil {
		return err
	}
	defer handle.Close()

	var rows []worker.ProcessHeartbeat
	if statusName != "" {
		row, err := worker.LatestHeartbeat(cmd.Context(), handle, statusName, statusSite)
		if err != nil {
			return fmt.Errorf("%s for site %q: %w", statusName, statusSite, err)
		}
		rows = append(rows, *row)
	} else if statusSite != "" {
		return errors.New("--site requires --name")
	} else {
		rows, err = worker.ListHeartbeats(cmd.Context(), handle)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-20s %-40s %-24s %8s %10s  %s\n", "NAME", "SITE", "HOST", "PID", "ITERATIONS", "LAST SEEN")
	for _, row := range rows {
		fmt.Fprintf(out, "%-20s %-40s %-24s %8d %10d  %s\n",
			row.Name, row.Site, row.Host, row.PID, row.Iterations, row.LastSeen.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
