package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Client  ClientConfig  `toml:"client"`
	Battle  BattleConfig  `toml:"battle"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	BindAddress   string        `toml:"bind_address" env:"BATTLE_SERVER_BIND"`
	AdminAddress  string        `toml:"admin_address" env:"BATTLE_ADMIN_ADDR"` // 空字符串表示不开启 HTTP 管理接口
	Timeout       time.Duration `toml:"timeout" env:"BATTLE_SERVER_TIMEOUT"`   // 无流量踢出窗口
	SweepInterval time.Duration `toml:"sweep_interval" env:"BATTLE_SERVER_SWEEP"`
	ReadTimeout   time.Duration `toml:"read_timeout"`
	MaxDatagram   int           `toml:"max_datagram"`
}

type ClientConfig struct {
	ServerAddress     string        `toml:"server_address" env:"BATTLE_SERVER_ADDR"`
	ListenPort        int           `toml:"listen_port" env:"BATTLE_CLIENT_PORT"`
	PlayerID          string        `toml:"player_id" env:"BATTLE_PLAYER_ID"` // 为空时自动生成
	Name              string        `toml:"name" env:"BATTLE_PLAYER_NAME"`
	PetName           string        `toml:"pet_name" env:"BATTLE_PET_NAME"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval"`
	ReadTimeout       time.Duration `toml:"read_timeout"`
	BridgeAddress     string        `toml:"bridge_address" env:"BATTLE_BRIDGE_ADDR"` // UI 事件桥监听地址，空则关闭
}

type BattleConfig struct {
	RulesFile     string        `toml:"rules_file" env:"BATTLE_RULES_FILE"` // 为空使用内置规则表
	StatusTick    time.Duration `toml:"status_tick"`
	MeleeCooldown time.Duration `toml:"melee_cooldown"`
}

type LoggingConfig struct {
	Level      string `toml:"level" env:"BATTLE_LOG_LEVEL"`
	File       string `toml:"file" env:"BATTLE_LOG_FILE"`
	Console    bool   `toml:"console"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Load 读取 TOML 配置并叠加环境变量。文件不存在时只用默认值与环境变量。
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查相互依赖的取值
func (c *Config) Validate() error {
	if c.Server.Timeout <= 0 {
		return errors.New("server.timeout must be positive")
	}
	if c.Server.SweepInterval <= 0 {
		return errors.New("server.sweep_interval must be positive")
	}
	if c.Client.HeartbeatInterval <= 0 || c.Client.HeartbeatInterval >= c.Server.Timeout {
		return fmt.Errorf("client.heartbeat_interval %v must be positive and below server.timeout %v",
			c.Client.HeartbeatInterval, c.Server.Timeout)
	}
	if c.Client.ListenPort < 0 || c.Client.ListenPort > 65535 {
		return fmt.Errorf("client.listen_port %d out of range", c.Client.ListenPort)
	}
	if c.Server.MaxDatagram < 512 {
		return fmt.Errorf("server.max_datagram %d too small", c.Server.MaxDatagram)
	}
	return nil
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:   "0.0.0.0:8888",
			AdminAddress:  "127.0.0.1:8080",
			Timeout:       10 * time.Second,
			SweepInterval: time.Second,
			ReadTimeout:   time.Second,
			MaxDatagram:   2048,
		},
		Client: ClientConfig{
			ServerAddress:     "127.0.0.1:8888",
			ListenPort:        8889,
			Name:              "Player",
			PetName:           "Pet",
			HeartbeatInterval: 5 * time.Second,
			ReadTimeout:       time.Second,
			BridgeAddress:     "127.0.0.1:8890",
		},
		Battle: BattleConfig{
			StatusTick:    100 * time.Millisecond,
			MeleeCooldown: time.Second,
		},
		Logging: LoggingConfig{
			Level:      "debug",
			File:       "battle.log",
			Console:    true,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}
