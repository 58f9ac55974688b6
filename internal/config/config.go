// Package config holds the runtime configuration for the irrigation
// automation CLI, populated from viper (flags + env), matching the
// teacher's flat-struct-from-viper idiom.
package config

import "github.com/spf13/viper"

// Config holds all runtime configuration for irrigationwatch.
type Config struct {
	Manager          string
	MaxFarms         int
	Headless         bool
	TrainingMode     bool
	DashboardPort    int
	StateDir         string
	DataDir          string
	TrainingDir      string
	HistoryDir       string
	ScreenshotsDir   string
	CrashReportsDir  string
	TargetBaseURL    string
	Username         string
	Password         string
}

// Load reads configuration from viper, which merges flag values, env
// vars, and defaults bound by the cobra command in cmd/irrigationwatch.
func Load() Config {
	return Config{
		Manager:         viper.GetString("manager"),
		MaxFarms:        viper.GetInt("max_farms"),
		Headless:        viper.GetBool("headless"),
		TrainingMode:    viper.GetBool("training_mode"),
		DashboardPort:   viper.GetInt("dashboard_port"),
		StateDir:        viper.GetString("state_dir"),
		DataDir:         viper.GetString("data_dir"),
		TrainingDir:     viper.GetString("training_dir"),
		HistoryDir:      viper.GetString("history_dir"),
		ScreenshotsDir:  viper.GetString("screenshots_dir"),
		CrashReportsDir: viper.GetString("crash_reports_dir"),
		TargetBaseURL:   viper.GetString("target_base_url"),
		Username:        viper.GetString("username"),
		Password:        viper.GetString("password"),
	}
}
