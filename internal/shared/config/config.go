package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"olxscout/internal/shared/types"
)

// LoadIni 加载 olxscout.ini。文件中缺失的键保留 DefaultConfig 的值。
// 文件不存在时返回默认配置，而不是错误。
func LoadIni(fileName string) (*types.Config, error) {
	cfg := types.DefaultConfig()

	if _, err := os.Stat(fileName); err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	iniFile, err := ini.Load(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", fileName, err)
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return nil, fmt.Errorf("failed to map config file '%s': %w", fileName, err)
	}
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that MapTo cannot express.
func Validate(cfg *types.Config) error {
	if cfg.FetchConf.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be positive, got %d", cfg.FetchConf.TimeoutSeconds)
	}
	if cfg.FetchConf.MaxResults <= 0 || cfg.FetchConf.MaxResults > 20 {
		return fmt.Errorf("fetch.max_results must be between 1 and 20, got %d", cfg.FetchConf.MaxResults)
	}
	if cfg.WebConf.Port < 0 || cfg.WebConf.Port > 65535 {
		return fmt.Errorf("web.port out of range: %d", cfg.WebConf.Port)
	}
	if cfg.WebConf.SearchRate < 0 {
		return fmt.Errorf("web.search_rate must not be negative, got %v", cfg.WebConf.SearchRate)
	}
	return nil
}

// ResolvePath 将相对路径解析到配置目录下。
func ResolvePath(configDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(configDir, p)
}

func applyEnvOverrides(cfg *types.Config) {
	overrideFromEnvInt(&cfg.WebConf.Port, "OLXSCOUT_WEB_PORT")
	overrideFromEnvString(&cfg.LogConf.Level, "OLXSCOUT_LOG_LEVEL")
	overrideFromEnvString(&cfg.CommonConf.ProxiesFile, "OLXSCOUT_PROXIES_FILE")
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := strings.TrimSpace(os.Getenv(envName)); envValue != "" {
		*target = envValue
	}
}
