package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/agent"
	"github.com/hairizuan-noorazman/desktop-agent/capture"
	"github.com/hairizuan-noorazman/desktop-agent/database"
	"github.com/hairizuan-noorazman/desktop-agent/model"
	"github.com/hairizuan-noorazman/desktop-agent/storage"
	"github.com/hairizuan-noorazman/desktop-agent/window"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Log       LogConfig
	Dump      DumpConfig
	Capture   CaptureConfig
	Inspector InspectorConfig
	Agent     AgentConfig
	Model     ModelConfig
	Tools     ToolsConfig
	Database  DatabaseConfig
	Archive   ArchiveConfig
	Status    StatusConfig
	HUD       HUDConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// DumpConfig says where run folders are created.
type DumpConfig struct {
	Dir string
}

type CaptureConfig struct {
	Resolution string
}

type InspectorConfig struct {
	TextTimeout time.Duration
	ChildDepth  int
}

// AgentConfig holds the run policy.
type AgentConfig struct {
	MaxIterations int
	TimeLimit     time.Duration
	TurnDelay     time.Duration
}

// ModelConfig selects the model endpoint and its sampling parameters.
type ModelConfig struct {
	Provider         string
	URL              string
	Name             string
	APIKey           string
	SystemPromptFile string
	Timeout          time.Duration
	RetryMax         int
	RetryWaitMin     time.Duration
	RetryWaitMax     time.Duration
	BedrockRegion    string
	BedrockModel     string
	Sampling         agent.Sampling
}

type ToolsConfig struct {
	SpecFile string
}

// DatabaseConfig holds the run registry connection. The sqlite path defaults
// to franz.db inside the dump folder.
type DatabaseConfig struct {
	Enabled      bool
	Driver       string
	Path         string
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
}

// ArchiveConfig holds the optional screenshot archive.
type ArchiveConfig struct {
	Type          string // "", "local" or "s3"
	BaseDir       string
	S3Bucket      string
	S3Region      string
	PresignExpiry time.Duration
}

type StatusConfig struct {
	Addr string
}

// HUDConfig controls the story window. StartPaused only applies when a
// window can be shown.
type HUDConfig struct {
	Enabled     bool
	StartPaused bool
	StoryFile   string
}

// LoadConfig loads configuration from file and FRANZ_ environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("franz")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("FRANZ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config

	config.Log.Level = v.GetString("log.level")
	config.Log.Format = v.GetString("log.format")

	config.Dump.Dir = v.GetString("dump.dir")

	config.Capture.Resolution = v.GetString("capture.resolution")

	config.Inspector.TextTimeout = v.GetDuration("inspector.text_timeout")
	config.Inspector.ChildDepth = v.GetInt("inspector.child_depth")

	config.Agent.MaxIterations = v.GetInt("agent.max_iterations")
	config.Agent.TimeLimit = v.GetDuration("agent.time_limit")
	config.Agent.TurnDelay = v.GetDuration("agent.turn_delay")

	config.Model.Provider = v.GetString("model.provider")
	config.Model.URL = v.GetString("model.url")
	config.Model.Name = v.GetString("model.name")
	config.Model.APIKey = v.GetString("model.api_key")
	config.Model.SystemPromptFile = v.GetString("model.system_prompt_file")
	config.Model.Timeout = v.GetDuration("model.timeout")
	config.Model.RetryMax = v.GetInt("model.retry_max")
	config.Model.RetryWaitMin = v.GetDuration("model.retry_wait_min")
	config.Model.RetryWaitMax = v.GetDuration("model.retry_wait_max")
	config.Model.BedrockRegion = v.GetString("model.bedrock_region")
	config.Model.BedrockModel = v.GetString("model.bedrock_model")
	config.Model.Sampling = agent.Sampling{
		Temperature:      v.GetFloat64("model.sampling.temperature"),
		TopP:             v.GetFloat64("model.sampling.top_p"),
		TopK:             v.GetInt("model.sampling.top_k"),
		MaxTokens:        v.GetInt("model.sampling.max_tokens"),
		PresencePenalty:  v.GetFloat64("model.sampling.presence_penalty"),
		FrequencyPenalty: v.GetFloat64("model.sampling.frequency_penalty"),
		RepeatPenalty:    v.GetFloat64("model.sampling.repeat_penalty"),
		Stop:             v.GetStringSlice("model.sampling.stop"),
		Seed:             v.GetInt64("model.sampling.seed"),
	}
	if config.Model.Sampling.Stop == nil {
		config.Model.Sampling.Stop = []string{}
	}

	config.Tools.SpecFile = v.GetString("tools.spec_file")

	config.Database.Enabled = v.GetBool("database.enabled")
	config.Database.Driver = v.GetString("database.driver")
	config.Database.Path = v.GetString("database.path")
	config.Database.Host = v.GetString("database.host")
	config.Database.Port = v.GetInt("database.port")
	config.Database.User = v.GetString("database.user")
	config.Database.Password = v.GetString("database.password")
	config.Database.Database = v.GetString("database.database")
	config.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	config.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")

	config.Archive.Type = v.GetString("archive.type")
	config.Archive.BaseDir = v.GetString("archive.base_dir")
	config.Archive.S3Bucket = v.GetString("archive.s3_bucket")
	config.Archive.S3Region = v.GetString("archive.s3_region")
	config.Archive.PresignExpiry = v.GetDuration("archive.presign_expiry")

	config.Status.Addr = v.GetString("status.addr")

	config.HUD.Enabled = v.GetBool("hud.enabled")
	config.HUD.StartPaused = v.GetBool("hud.start_paused")
	config.HUD.StoryFile = v.GetString("hud.story_file")

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("dump.dir", "dump")

	v.SetDefault("capture.resolution", capture.DefaultPreset)

	v.SetDefault("inspector.text_timeout", window.DefaultTextTimeout.String())
	v.SetDefault("inspector.child_depth", 1)

	v.SetDefault("agent.max_iterations", 0)
	v.SetDefault("agent.time_limit", "0s")
	v.SetDefault("agent.turn_delay", agent.DefaultTurnDelay.String())

	m := model.DefaultConfig()
	v.SetDefault("model.provider", m.Provider)
	v.SetDefault("model.url", m.URL)
	v.SetDefault("model.name", m.Name)
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.system_prompt_file", "")
	v.SetDefault("model.timeout", m.Timeout.String())
	v.SetDefault("model.retry_max", m.RetryMax)
	v.SetDefault("model.retry_wait_min", m.RetryWaitMin.String())
	v.SetDefault("model.retry_wait_max", m.RetryWaitMax.String())
	v.SetDefault("model.bedrock_region", "us-east-1")
	v.SetDefault("model.bedrock_model", "")

	s := agent.DefaultSampling()
	v.SetDefault("model.sampling.temperature", s.Temperature)
	v.SetDefault("model.sampling.top_p", s.TopP)
	v.SetDefault("model.sampling.top_k", s.TopK)
	v.SetDefault("model.sampling.max_tokens", s.MaxTokens)
	v.SetDefault("model.sampling.presence_penalty", s.PresencePenalty)
	v.SetDefault("model.sampling.frequency_penalty", s.FrequencyPenalty)
	v.SetDefault("model.sampling.repeat_penalty", s.RepeatPenalty)
	v.SetDefault("model.sampling.stop", s.Stop)
	v.SetDefault("model.sampling.seed", s.Seed)

	v.SetDefault("tools.spec_file", "")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.path", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "franz")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 2)

	v.SetDefault("archive.type", "")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.s3_bucket", "")
	v.SetDefault("archive.s3_region", "us-east-1")
	v.SetDefault("archive.presign_expiry", "15m")

	v.SetDefault("status.addr", "")

	v.SetDefault("hud.enabled", true)
	v.SetDefault("hud.start_paused", true)
	v.SetDefault("hud.story_file", "")
}

// databaseConfig converts the database section for database.Connect.
func (c *Config) databaseConfig() database.Config {
	path := c.Database.Path
	if path == "" {
		path = filepath.Join(c.Dump.Dir, "franz.db")
	}
	return database.Config{
		Driver:       c.Database.Driver,
		Path:         path,
		Host:         c.Database.Host,
		Port:         c.Database.Port,
		User:         c.Database.User,
		Password:     c.Database.Password,
		Database:     c.Database.Database,
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxIdleConns: c.Database.MaxIdleConns,
	}
}

// modelConfig converts the model section for model.NewEndpoint. The system
// prompt is read by the caller.
func (c *Config) modelConfig(systemPrompt string) model.Config {
	return model.Config{
		Provider:      c.Model.Provider,
		URL:           c.Model.URL,
		Name:          c.Model.Name,
		APIKey:        c.Model.APIKey,
		SystemPrompt:  systemPrompt,
		Timeout:       c.Model.Timeout,
		RetryMax:      c.Model.RetryMax,
		RetryWaitMin:  c.Model.RetryWaitMin,
		RetryWaitMax:  c.Model.RetryWaitMax,
		BedrockRegion: c.Model.BedrockRegion,
		BedrockModel:  c.Model.BedrockModel,
	}
}

// archiveConfig converts the archive section for storage.New. Keys are
// placed under the run folder name.
func (c *Config) archiveConfig(runName string) storage.Config {
	return storage.Config{
		Type:          c.Archive.Type,
		BaseDir:       c.Archive.BaseDir,
		Bucket:        c.Archive.S3Bucket,
		Region:        c.Archive.S3Region,
		Prefix:        runName,
		PresignExpiry: c.Archive.PresignExpiry,
	}
}
