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

// Package config provides configuration management for aCT fleet processes.
// config 包提供 aCT 进程的配置管理功能。
//
// A single YAML file is shared by every process on a node. It is read once at
// startup for static settings (logging, databases, telemetry) and re-read on
// every loop iteration through Live for the values operators change at runtime
// (downtime list, periodic restart intervals).
// 同一个 YAML 文件在启动时读取静态设置，并在每次循环中通过 Live 重新读取运行时可变的值。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath    = "/etc/act/act.yaml"
	DefaultTmpDir        = "/tmp/act"
	DefaultLogLevel      = "info"
	DefaultLogDir        = "/var/log/act"
	DefaultLogMaxSize    = 100 // MB
	DefaultLogMaxBackups = 3
	DefaultLogMaxAge     = 7 // days
	DefaultTimeout       = 20
	DefaultDatabaseType  = DatabaseTypeSQLite

	// EnvConfigPath names the environment variable consulted when no path is given.
	// EnvConfigPath 是未指定路径时读取的环境变量名。
	EnvConfigPath = "ACT_CONFIG_PATH"
)

// Supported database types
// 支持的数据库类型
const (
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypeMySQL    = "mysql"
	DatabaseTypePostgres = "postgres"
)

// Config represents the static settings of a process
// Config 表示进程的静态设置
type Config struct {
	// Tmp holds the scratch directory / 临时目录
	Tmp TmpConfig `mapstructure:"tmp"`

	// VOMS holds proxy and CA locations / 代理证书与 CA 位置
	VOMS VOMSConfig `mapstructure:"voms"`

	// Network holds the outbound network timeout / 外部网络超时
	Network NetworkConfig `mapstructure:"atlasgiis"`

	// Logger configuration / 日志配置
	Logger LogConfig `mapstructure:"logger"`

	// JobDB is the job-state database / 作业状态数据库
	JobDB DatabaseConfig `mapstructure:"db"`

	// CondorDB is the secondary database / 次级数据库
	CondorDB DatabaseConfig `mapstructure:"condordb"`

	// Telemetry configuration / 遥测配置
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Check holds the static settings of the check unit / 检查单元的静态设置
	Check CheckConfig `mapstructure:"check"`
}

// TmpConfig contains the scratch directory
// TmpConfig 包含临时目录
type TmpConfig struct {
	Dir string `mapstructure:"dir"`
}

// VOMSConfig contains proxy credential settings
// VOMSConfig 包含代理证书设置
type VOMSConfig struct {
	// ProxyPath is the default proxy handed to the middleware
	// ProxyPath 是交给中间件的默认代理
	ProxyPath string `mapstructure:"proxypath"`

	// CACertDir is the CA certificates directory
	// CACertDir 是 CA 证书目录
	CACertDir string `mapstructure:"cacertdir"`

	// ProxyStoreDir holds the rotated per-job proxies (proxiesid<N>)
	// ProxyStoreDir 存放轮换的作业代理文件
	ProxyStoreDir string `mapstructure:"proxystoredir"`
}

// NetworkConfig contains the outbound timeout in seconds
// NetworkConfig 包含外部连接超时（秒）
type NetworkConfig struct {
	Timeout int `mapstructure:"timeout"`
}

// LogConfig contains logging settings
// LogConfig 包含日志设置
type LogConfig struct {
	// Level is the log level (debug, info, warn, error)
	// Level 是日志级别（debug, info, warn, error）
	Level string `mapstructure:"level"`

	// Dir is the directory holding one file per process
	// Dir 是存放每个进程日志文件的目录
	Dir string `mapstructure:"logdir"`

	// MaxSize is the maximum size of log file in MB before rotation
	// MaxSize 是日志文件轮转前的最大大小（MB）
	MaxSize int `mapstructure:"max_size"`

	// MaxBackups is the maximum number of old log files to retain
	// MaxBackups 是保留的旧日志文件的最大数量
	MaxBackups int `mapstructure:"max_backups"`

	// MaxAge is the maximum number of days to retain old log files
	// MaxAge 是保留旧日志文件的最大天数
	MaxAge int `mapstructure:"max_age"`

	// Console mirrors the operational log to stderr
	// Console 将运行日志同时输出到 stderr
	Console bool `mapstructure:"console"`
}

// DatabaseConfig contains database connection settings
// DatabaseConfig 包含数据库连接设置
type DatabaseConfig struct {
	Type            string `mapstructure:"type"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	LogLevel        string `mapstructure:"log_level"`
	MaxIdleConn     int    `mapstructure:"max_idle_conn"`
	MaxOpenConn     int    `mapstructure:"max_open_conn"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
}

// TelemetryConfig contains OpenTelemetry export settings
// TelemetryConfig 包含 OpenTelemetry 导出设置
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// CheckConfig contains static check unit settings. Endpoints and the proxy id are
// read live from check.endpoint and check.proxyid.
// CheckConfig 包含检查单元的静态设置，端点与代理 id 为实时读取。
type CheckConfig struct {
	// TrustCACertDir verifies checked servers against voms.cacertdir
	// instead of the system roots
	// TrustCACertDir 使用 voms.cacertdir 而非系统根证书校验被检查的服务端
	TrustCACertDir bool `mapstructure:"trustcacertdir"`
}

// Load reads the static settings from the configuration file
// Load 从配置文件读取静态设置
func Load(configPath string) (*Config, error) {
	live, err := OpenLive(configPath)
	if err != nil {
		return nil, err
	}
	return live.Settings()
}

// resolvePath applies the flag > env > default priority for the file location.
func resolvePath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}
	return DefaultConfigPath
}

// newViper returns a viper instance bound to path with defaults and env override
// newViper 返回绑定路径、默认值与环境变量覆盖的 viper 实例
func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix("ACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("tmp.dir", DefaultTmpDir)
	v.SetDefault("voms.proxypath", "")
	v.SetDefault("voms.cacertdir", "/etc/grid-security/certificates")
	v.SetDefault("voms.proxystoredir", "")
	v.SetDefault("atlasgiis.timeout", DefaultTimeout)

	// Log defaults / 日志默认值
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.logdir", DefaultLogDir)
	v.SetDefault("logger.max_size", DefaultLogMaxSize)
	v.SetDefault("logger.max_backups", DefaultLogMaxBackups)
	v.SetDefault("logger.max_age", DefaultLogMaxAge)
	v.SetDefault("logger.console", false)

	// Database defaults / 数据库默认值
	v.SetDefault("db.type", DefaultDatabaseType)
	v.SetDefault("db.sqlite_path", DefaultTmpDir+"/act.db")
	v.SetDefault("db.log_level", "warn")
	v.SetDefault("condordb.type", DefaultDatabaseType)
	v.SetDefault("condordb.sqlite_path", DefaultTmpDir+"/actcondor.db")
	v.SetDefault("condordb.log_level", "warn")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("check.trustcacertdir", false)
}

// ProxyStoreDir returns where rotated proxies live, falling back to <tmp.dir>/proxies
// ProxyStoreDir 返回轮换代理文件所在目录，默认为 <tmp.dir>/proxies
func (c *Config) ProxyStoreDir() string {
	if c.VOMS.ProxyStoreDir != "" {
		return c.VOMS.ProxyStoreDir
	}
	return filepath.Join(c.Tmp.Dir, "proxies")
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}
	if c.Logger.Dir == "" {
		return errors.New("logger.logdir is required")
	}

	if err := c.JobDB.validate("db"); err != nil {
		return err
	}
	if err := c.CondorDB.validate("condordb"); err != nil {
		return err
	}

	if c.Network.Timeout < 0 {
		return errors.New("atlasgiis.timeout must not be negative")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

func (d DatabaseConfig) validate(prefix string) error {
	switch d.Type {
	case DatabaseTypeSQLite:
		if d.SQLitePath == "" {
			return fmt.Errorf("%s.sqlite_path is required for sqlite", prefix)
		}
	case DatabaseTypeMySQL, DatabaseTypePostgres:
		if d.Host == "" || d.Database == "" {
			return fmt.Errorf("%s.host and %s.database are required for %s", prefix, prefix, d.Type)
		}
	default:
		return fmt.Errorf("unsupported %s.type: %s (supported: sqlite, mysql, postgres)", prefix, d.Type)
	}
	return nil
}

// String returns a string representation of the config (for debugging)
// String 返回配置的字符串表示（用于调试）
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Tmp.Dir: %s, Logger.Level: %s, Logger.Dir: %s, JobDB.Type: %s, CondorDB.Type: %s, Timeout: %d}",
		c.Tmp.Dir,
		c.Logger.Level,
		c.Logger.Dir,
		c.JobDB.Type,
		c.CondorDB.Type,
		c.Network.Timeout,
	)
}
