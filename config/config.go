// Package config resolves tally's file paths and loads its settings
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pterm/pterm"
)

type (
	// Config holds all configuration settings
	Config struct {
		Settings     SettingsConfig
		Notification NotificationConfig
		System       SystemConfig
	}

	// SettingsConfig holds tracking behaviour settings
	SettingsConfig struct {
		// PollInterval is the reconciliation poll cadence.
		PollInterval time.Duration
		// IdleThreshold is how long without input counts as idle.
		IdleThreshold time.Duration
		// SessionCmd is run after each completed session.
		SessionCmd string
	}

	// NotificationConfig holds desktop notification settings
	NotificationConfig struct {
		Enabled bool
	}

	// SystemConfig holds file locations
	SystemConfig struct {
		ConfigPath string
		DBPath     string
		SocketPath string
		LogPath    string
	}

	// Option is a function that modifies Config
	Option func(*Config) error
)

const Version = "v0.3.0"

type paths struct {
	configDir      string
	configFileName string
	dbFileName     string
	socketFileName string
	logFileName    string
	configFilePath string
	dbFilePath     string
	socketFilePath string
	logFilePath    string
}

var defaultPaths = paths{
	configDir:      "tally",
	configFileName: "config.yml",
	dbFileName:     "tally.db",
	socketFileName: "tally.sock",
	logFileName:    "tally.log",
}

func (p *paths) applyEnvironmentOverrides() {
	tallyEnv := strings.TrimSpace(os.Getenv("TALLY_ENV"))
	if tallyEnv != "" {
		p.configFileName = fmt.Sprintf("config_%s.yml", tallyEnv)
		p.dbFileName = fmt.Sprintf("tally_%s.db", tallyEnv)
		p.socketFileName = fmt.Sprintf("tally_%s.sock", tallyEnv)
		p.logFileName = fmt.Sprintf("tally_%s.log", tallyEnv)
	}
}

func (p *paths) compute() {
	var err error

	relPath := filepath.Join(p.configDir, p.configFileName)

	p.configFilePath, err = xdg.ConfigFile(relPath)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	dataDir, err := xdg.DataFile(p.configDir)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	p.dbFilePath = filepath.Join(dataDir, p.dbFileName)
	p.socketFilePath = filepath.Join(dataDir, p.socketFileName)
	p.logFilePath = filepath.Join(dataDir, "log", p.logFileName)
}

// New loads the configuration, applying each option in order.
func New(opts ...Option) (*Config, error) {
	p := defaultPaths
	p.applyEnvironmentOverrides()
	p.compute()

	c := &Config{
		System: SystemConfig{
			ConfigPath: p.configFilePath,
			DBPath:     p.dbFilePath,
			SocketPath: p.socketFilePath,
			LogPath:    p.logFilePath,
		},
	}

	for _, opt := range opts {
		err := opt(c)
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}
