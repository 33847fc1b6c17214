/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config loads the per-user YAML configuration and applies
// GPF_* environment overrides on top of it.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GeneralConfig holds application-wide preferences.
type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	TelemetryURL   string `yaml:"telemetry_url"`
	// AssetsDir resolves relative picture paths such as "assets/ProfilePic.png".
	AssetsDir string `yaml:"assets_dir"`
}

// ExportConfig controls rasterization and PDF composition.
type ExportConfig struct {
	PageWidthMM        float64 `yaml:"page_width_mm"`
	Scale              float64 `yaml:"scale"`
	PageMode           string  `yaml:"page_mode"`  // "scaled" | "a4"
	Rasterizer         string  `yaml:"rasterizer"` // "native" | "chrome"
	ChromePath         string  `yaml:"chrome_path"`
	ChromeNoSandbox    bool    `yaml:"chrome_no_sandbox"`
	ChromeAutoDownload bool    `yaml:"chrome_auto_download"`
	TimeoutMs          int     `yaml:"timeout_ms"`
	OutDir             string  `yaml:"out_dir"`
}

// PreviewConfig selects optional rendering behaviour.
type PreviewConfig struct {
	DropEmptyTags     bool `yaml:"drop_empty_tags"`
	RenderDescription bool `yaml:"render_description"`
	SurfaceWidth      int  `yaml:"surface_width"`
	MinHeight         int  `yaml:"min_height"`
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

type CacheConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// AppConfig is the user-editable configuration file.
// config_version is bumped on backward-incompatible changes.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Export        ExportConfig  `yaml:"export"`
	Preview       PreviewConfig `yaml:"preview"`
	Web           WebConfig     `yaml:"web"`
	Cache         CacheConfig   `yaml:"cache"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{},
		Export: ExportConfig{
			PageWidthMM: 210,
			Scale:       2,
			PageMode:    "scaled",
			Rasterizer:  "native",
			TimeoutMs:   30000,
		},
		Preview: PreviewConfig{RenderDescription: true, SurfaceWidth: 794, MinHeight: 842},
		Web:     WebConfig{Addr: "127.0.0.1:8477"},
		Cache:   CacheConfig{MaxBytes: 64 << 20},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvAssetsDir        = "GPF_ASSETS_DIR"
	EnvTelemetryOptIn   = "GPF_TELEMETRY_OPT_IN"
	EnvExportRasterizer = "GPF_EXPORT_RASTERIZER"
	EnvExportScale      = "GPF_EXPORT_SCALE"
	EnvExportPageMode   = "GPF_EXPORT_PAGE_MODE"
	EnvChromePath       = "GPF_CHROME_PATH"
	EnvChromeNoSandbox  = "GPF_CHROME_NO_SANDBOX"
	EnvWebAddr          = "GPF_WEB_ADDR"
	EnvCacheMaxBytes    = "GPF_CACHE_MAX_BYTES"
	EnvLogLevel         = "GPF_LOG_LEVEL"
	EnvLogFormat        = "GPF_LOG_FORMAT"
	EnvLogSource        = "GPF_LOG_SOURCE"
	EnvLogFile          = "GPF_LOG_FILE"
	// EnvConfigFile points Load and Save at an explicit file.
	EnvConfigFile = "GPF_CONFIG"
)

// envKeys maps dotted config keys to the env var overriding them.
var envKeys = map[string]string{
	"general.assets_dir":       EnvAssetsDir,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"export.rasterizer":        EnvExportRasterizer,
	"export.scale":             EnvExportScale,
	"export.page_mode":         EnvExportPageMode,
	"export.chrome_path":       EnvChromePath,
	"export.chrome_no_sandbox": EnvChromeNoSandbox,
	"web.addr":                 EnvWebAddr,
	"cache.max_bytes":          EnvCacheMaxBytes,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "GoPortfolio")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GoPortfolio")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "goportfolio")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "goportfolio")
		}
	}
	if base == "" || base == "goportfolio" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file if present, applies defaults and merges
// environment overrides. A malformed file is reported but defaults are still returned.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	var perr error
	if data, err := os.ReadFile(path); err == nil {
		// absent keys keep their default, including booleans
		fileCfg := Defaults()
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			perr = err
		} else {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, perr
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans are copied as-is so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	setString(&dst.General.TelemetryURL, src.General.TelemetryURL)
	setString(&dst.General.AssetsDir, src.General.AssetsDir)

	if src.Export.PageWidthMM > 0 {
		dst.Export.PageWidthMM = src.Export.PageWidthMM
	}
	if src.Export.Scale > 0 {
		dst.Export.Scale = src.Export.Scale
	}
	setLower(&dst.Export.PageMode, src.Export.PageMode)
	setLower(&dst.Export.Rasterizer, src.Export.Rasterizer)
	setString(&dst.Export.ChromePath, src.Export.ChromePath)
	dst.Export.ChromeNoSandbox = src.Export.ChromeNoSandbox
	dst.Export.ChromeAutoDownload = src.Export.ChromeAutoDownload
	if src.Export.TimeoutMs > 0 {
		dst.Export.TimeoutMs = src.Export.TimeoutMs
	}
	setString(&dst.Export.OutDir, src.Export.OutDir)

	dst.Preview.DropEmptyTags = src.Preview.DropEmptyTags
	dst.Preview.RenderDescription = src.Preview.RenderDescription
	if src.Preview.SurfaceWidth > 0 {
		dst.Preview.SurfaceWidth = src.Preview.SurfaceWidth
	}
	if src.Preview.MinHeight > 0 {
		dst.Preview.MinHeight = src.Preview.MinHeight
	}

	setString(&dst.Web.Addr, src.Web.Addr)
	if src.Cache.MaxBytes > 0 {
		dst.Cache.MaxBytes = src.Cache.MaxBytes
	}

	setLower(&dst.Logging.Level, src.Logging.Level)
	setLower(&dst.Logging.Format, src.Logging.Format)
	dst.Logging.Source = src.Logging.Source
	setString(&dst.Logging.File, src.Logging.File)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setLower(dst *string, v string) { setString(dst, strings.ToLower(v)) }

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func applyEnvOverrides(cfg *AppConfig) {
	env := func(k string) string { return strings.TrimSpace(os.Getenv(k)) }

	setString(&cfg.General.AssetsDir, env(EnvAssetsDir))
	if v := env(EnvTelemetryOptIn); v != "" {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	setLower(&cfg.Export.Rasterizer, env(EnvExportRasterizer))
	if v := env(EnvExportScale); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Export.Scale = f
		}
	}
	setLower(&cfg.Export.PageMode, env(EnvExportPageMode))
	setString(&cfg.Export.ChromePath, env(EnvChromePath))
	if v := env(EnvChromeNoSandbox); v != "" {
		cfg.Export.ChromeNoSandbox = parseBool(v)
	}
	setString(&cfg.Web.Addr, env(EnvWebAddr))
	if v := env(EnvCacheMaxBytes); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Cache.MaxBytes = n
		}
	}
	setLower(&cfg.Logging.Level, env(EnvLogLevel))
	setLower(&cfg.Logging.Format, env(EnvLogFormat))
	if v := env(EnvLogSource); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	setString(&cfg.Logging.File, env(EnvLogFile))
}

// EnvOverrideFor returns the env var name if the key is currently overridden.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Timeout returns the export timeout, falling back to the default.
func (e ExportConfig) Timeout() time.Duration {
	if e.TimeoutMs <= 0 {
		return time.Duration(Defaults().Export.TimeoutMs) * time.Millisecond
	}
	return time.Duration(e.TimeoutMs) * time.Millisecond
}
