package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// viperKeys defines the mapping between config keys and their Viper counterparts.
const (
	keyPollInterval         = "settings.poll_interval"
	keyIdleThreshold        = "settings.idle_threshold"
	keySessionCmd           = "settings.session_cmd"
	keyNotificationsEnabled = "notifications.enabled"
)

// WithViperConfig returns an Option that loads configuration from Viper.
// A missing config file is written out with the defaults.
func WithViperConfig() Option {
	return func(c *Config) error {
		v := viper.New()

		v.SetConfigFile(c.System.ConfigPath)
		v.SetConfigType("yaml")

		setupViper(v)

		err := v.ReadInConfig()
		if err == nil {
			return loadViperConfig(v, c)
		}

		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading config file failed: %w", err)
		}

		if err := v.WriteConfig(); err != nil {
			return fmt.Errorf("writing default config failed: %w", err)
		}

		return loadViperConfig(v, c)
	}
}

// setupViper configures Viper with defaults.
func setupViper(v *viper.Viper) {
	v.SetDefault(keyPollInterval, "15s")
	v.SetDefault(keyIdleThreshold, "60s")
	v.SetDefault(keySessionCmd, "")
	v.SetDefault(keyNotificationsEnabled, true)
}

// loadViperConfig loads configuration from Viper into the Config struct.
func loadViperConfig(v *viper.Viper, c *Config) error {
	c.Settings.PollInterval = v.GetDuration(keyPollInterval)
	c.Settings.IdleThreshold = v.GetDuration(keyIdleThreshold)
	c.Settings.SessionCmd = v.GetString(keySessionCmd)
	c.Notification.Enabled = v.GetBool(keyNotificationsEnabled)

	return nil
}
