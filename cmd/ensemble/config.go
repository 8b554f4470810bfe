package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"ensemble_recommender/internal/backend"

	"gopkg.in/yaml.v3"
)

// ServerConfig 对应 configs/server.yaml
type ServerConfig struct {
	Server struct {
		Port  string `yaml:"port"`
		Debug bool   `yaml:"debug"`
	} `yaml:"server"`
	Ensemble struct {
		BackendTimeoutMs int `yaml:"backend_timeout_ms"`
		RequestTimeoutMs int `yaml:"request_timeout_ms"`
	} `yaml:"ensemble"`
	Session struct {
		TTLMinutes           int `yaml:"ttl_minutes"`
		SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
	} `yaml:"session"`
	Paths struct {
		Backends string `yaml:"backends"`
		Journal  string `yaml:"journal"`
	} `yaml:"paths"`
}

// BackendsConfig 对应 configs/backends.yaml
type BackendsConfig struct {
	Backends map[string]backend.Config `yaml:"backends"`
}

func loadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadBackendsConfig(path string) (*BackendsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg BackendsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("no backends configured in %s", path)
	}
	return &cfg, nil
}

// InitServerConfig 初始化服务器配置，优先级：命令行参数 > 配置文件 > 默认值
func InitServerConfig() *ServerConfig {
	// 命令行参数默认值设为空，以便区分"未指定"和"显式指定"
	configPath := flag.String("config", "configs/server.yaml", "Path to server config file")
	portFlag := flag.String("port", "", "Server port")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	backendsPathFlag := flag.String("backends", "", "Path to backends.yaml")
	journalPathFlag := flag.String("journal", "", "Path to impression journal (jsonl)")
	flag.Parse()

	// 1. 初始化默认值
	serverCfg := &ServerConfig{}
	serverCfg.Server.Port = "8080"
	serverCfg.Server.Debug = false
	serverCfg.Ensemble.BackendTimeoutMs = 2000
	serverCfg.Ensemble.RequestTimeoutMs = 10000
	serverCfg.Session.TTLMinutes = 24 * 60
	serverCfg.Session.SweepIntervalMinutes = 10
	serverCfg.Paths.Backends = "configs/backends.yaml"
	serverCfg.Paths.Journal = "data/impressions.jsonl"

	// 2. 尝试加载配置文件，文件缺失不报错，继续用默认值
	if loadedCfg, err := loadServerConfig(*configPath); err == nil {
		if loadedCfg.Server.Port != "" {
			serverCfg.Server.Port = loadedCfg.Server.Port
		}
		if loadedCfg.Server.Debug {
			serverCfg.Server.Debug = true
		}
		if loadedCfg.Ensemble.BackendTimeoutMs > 0 {
			serverCfg.Ensemble.BackendTimeoutMs = loadedCfg.Ensemble.BackendTimeoutMs
		}
		if loadedCfg.Ensemble.RequestTimeoutMs > 0 {
			serverCfg.Ensemble.RequestTimeoutMs = loadedCfg.Ensemble.RequestTimeoutMs
		}
		if loadedCfg.Session.TTLMinutes > 0 {
			serverCfg.Session.TTLMinutes = loadedCfg.Session.TTLMinutes
		}
		if loadedCfg.Session.SweepIntervalMinutes > 0 {
			serverCfg.Session.SweepIntervalMinutes = loadedCfg.Session.SweepIntervalMinutes
		}
		if loadedCfg.Paths.Backends != "" {
			serverCfg.Paths.Backends = loadedCfg.Paths.Backends
		}
		if loadedCfg.Paths.Journal != "" {
			serverCfg.Paths.Journal = loadedCfg.Paths.Journal
		}
	} else {
		log.Printf("Info: Could not load config file '%s': %v. Using defaults or flags.", *configPath, err)
	}

	// 3. 应用命令行参数 (优先级最高)
	if *portFlag != "" {
		serverCfg.Server.Port = *portFlag
	}
	if *debugFlag {
		serverCfg.Server.Debug = true
	}
	if *backendsPathFlag != "" {
		serverCfg.Paths.Backends = *backendsPathFlag
	}
	if *journalPathFlag != "" {
		serverCfg.Paths.Journal = *journalPathFlag
	}

	return serverCfg
}
