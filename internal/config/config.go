// Package config holds the crawler's closed configuration surface and an
// optional JSON-file loader. File values load first; CLI flags applied
// afterwards override them.
package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config is the crawler's full option set.
type Config struct {
	Proxy            string  `json:"proxy"`
	ConnectTimeout   float64 `json:"connect_timeout"`
	RequestTimeout   float64 `json:"request_timeout"`
	ValidateCert     bool    `json:"validate_cert"`
	MaxPages         int     `json:"max_pages"`
	ClearTasks       bool    `json:"clear_tasks"`
	Workers          int     `json:"workers"`
	FollowOuterLinks bool    `json:"follow_outer_links"`
	FollowInnerLinks bool    `json:"follow_inner_links"`
	ThrottlingRatio  float64 `json:"throttling_ratio"`
}

// Default returns the documented option defaults.
func Default() Config {
	return Config{
		Proxy:            "localhost:8118",
		ConnectTimeout:   10.0,
		RequestTimeout:   20.0,
		ValidateCert:     false,
		MaxPages:         100,
		ClearTasks:       true,
		Workers:          10,
		FollowOuterLinks: true,
		FollowInnerLinks: false,
		ThrottlingRatio:  0.9,
	}
}

// LoadFile reads a JSON file of the same option set, overlaying every field
// present in the file onto cfg, zero values included. Missing file fields
// keep cfg's existing value.
func LoadFile(path string, cfg Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ConnectTimeoutDuration converts ConnectTimeout (seconds) to a Duration.
func (c Config) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout * float64(time.Second))
}

// RequestTimeoutDuration converts RequestTimeout (seconds) to a Duration.
func (c Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout * float64(time.Second))
}
