package config

import (
	"time"
)

// FrameworkConfig 引擎框架配置（对外导出）
type FrameworkConfig struct {
	Toolflow struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Server struct {
			HTTPPort  int  `yaml:"http_port"`
			WSEnabled bool `yaml:"ws_enabled"`
		} `yaml:"server"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
				ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
			} `yaml:"database"`
		} `yaml:"storage"`
		Execution struct {
			DefaultTaskTimeout time.Duration `yaml:"default_task_timeout"`
			RetryBackoff       time.Duration `yaml:"retry_backoff"`
			ProgressDebug      bool          `yaml:"progress_debug"`
		} `yaml:"execution"`
		Scheduler struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"scheduler"`
	} `yaml:"toolflow"`
}

// GetDatabaseType 获取数据库类型
func (c *FrameworkConfig) GetDatabaseType() string {
	return c.Toolflow.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *FrameworkConfig) GetDatabaseDSN() string {
	return c.Toolflow.Storage.Database.DSN
}

// GetHTTPPort 获取HTTP服务端口
func (c *FrameworkConfig) GetHTTPPort() int {
	if c.Toolflow.Server.HTTPPort <= 0 {
		return 8080 // 默认值
	}
	return c.Toolflow.Server.HTTPPort
}

// GetDefaultTaskTimeout 获取默认任务超时时间
func (c *FrameworkConfig) GetDefaultTaskTimeout() time.Duration {
	timeout := c.Toolflow.Execution.DefaultTaskTimeout
	if timeout <= 0 {
		return 30 * time.Second // 默认值
	}
	return timeout
}

// GetRetryBackoff 获取重试间隔基准
func (c *FrameworkConfig) GetRetryBackoff() time.Duration {
	backoff := c.Toolflow.Execution.RetryBackoff
	if backoff <= 0 {
		return 1 * time.Second // 默认值
	}
	return backoff
}

// ApplyDefaults 应用默认值
func (c *FrameworkConfig) ApplyDefaults() {
	// General默认值
	if c.Toolflow.General.InstanceName == "" {
		c.Toolflow.General.InstanceName = "toolflow"
	}
	if c.Toolflow.General.LogLevel == "" {
		c.Toolflow.General.LogLevel = "info"
	}
	if c.Toolflow.General.Env == "" {
		c.Toolflow.General.Env = "dev"
	}

	// Server默认值
	if c.Toolflow.Server.HTTPPort <= 0 {
		c.Toolflow.Server.HTTPPort = 8080
	}

	// Database默认值
	if c.Toolflow.Storage.Database.Type == "" {
		c.Toolflow.Storage.Database.Type = "sqlite3"
	}
	if c.Toolflow.Storage.Database.DSN == "" {
		c.Toolflow.Storage.Database.DSN = "toolflow.db"
	}
	if c.Toolflow.Storage.Database.MaxOpenConns <= 0 {
		c.Toolflow.Storage.Database.MaxOpenConns = 10
	}
	if c.Toolflow.Storage.Database.MaxIdleConns <= 0 {
		c.Toolflow.Storage.Database.MaxIdleConns = 5
	}
	if c.Toolflow.Storage.Database.ConnMaxLifetime <= 0 {
		c.Toolflow.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}
	if c.Toolflow.Storage.Database.ConnMaxIdleTime <= 0 {
		c.Toolflow.Storage.Database.ConnMaxIdleTime = 1 * time.Hour
	}

	// Execution默认值
	if c.Toolflow.Execution.DefaultTaskTimeout <= 0 {
		c.Toolflow.Execution.DefaultTaskTimeout = 30 * time.Second
	}
	if c.Toolflow.Execution.RetryBackoff <= 0 {
		c.Toolflow.Execution.RetryBackoff = 1 * time.Second
	}
}
