// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads droidvet's configuration from a single YAML
// file given by an explicit path. There are no fallbacks or automatic
// discovery, so the effective configuration is auditable from the one
// file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	// Listen is the HTTP boundary listen address.
	Listen string `yaml:"listen"`

	// Database is the SQLite task store path.
	Database string `yaml:"database"`

	// ArtifactDir is the root of the artifact store (screenshots,
	// event trails).
	ArtifactDir string `yaml:"artifact_dir"`

	// Broker configures the task queue and dispatch loop.
	Broker BrokerConfig `yaml:"broker"`

	// Providers configures the external inference and reputation
	// services.
	Providers ProvidersConfig `yaml:"providers"`

	// Emulator configures the sandbox pool, provisioner, and device
	// bridge.
	Emulator EmulatorConfig `yaml:"emulator"`
}

// BrokerConfig configures task queuing and dispatch.
type BrokerConfig struct {
	// QueueCapacity is the dispatch wake-up channel capacity. Task
	// creation never blocks on it: overflow is recovered by the
	// pending sweep.
	QueueCapacity int `yaml:"queue_capacity"`

	// Workers is the number of concurrent dispatch goroutines.
	Workers int `yaml:"workers"`

	// SweepInterval is how often the loop re-scans for pending
	// tasks that missed their wake-up (daemon restart, queue
	// overflow).
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ProvidersConfig configures external provider access.
type ProvidersConfig struct {
	// InferenceURL is the LLM provider base URL
	// (POST {InferenceURL}/inference).
	InferenceURL string `yaml:"inference_url"`

	// ReputationURL is the domain-reputation provider base URL
	// (GET {ReputationURL}/domain/check?url=...).
	ReputationURL string `yaml:"reputation_url"`

	// Timeout bounds each individual provider HTTP call.
	Timeout time.Duration `yaml:"timeout"`

	// MaxAttempts is the total number of tries for transient
	// failures (first call plus retries).
	MaxAttempts int `yaml:"max_attempts"`
}

// EmulatorConfig configures dynamic-analysis infrastructure.
type EmulatorConfig struct {
	// AutomationDir is the infrastructure-automation working
	// directory (the terraform root).
	AutomationDir string `yaml:"automation_dir"`

	// AutomationBinary is the automation executable. Default
	// "terraform".
	AutomationBinary string `yaml:"automation_binary"`

	// InstancesFile is the JSON handoff document the automation
	// writes, mapping resource class to endpoint URIs.
	InstancesFile string `yaml:"instances_file"`

	// SeedFile is an optional operator-maintained JSONC file of
	// pre-provisioned endpoints loaded at startup.
	SeedFile string `yaml:"seed_file"`

	// DesiredCount is how many instances one provisioning round
	// requests. Default 1.
	DesiredCount int `yaml:"desired_count"`

	// ProvisionTimeout bounds one provisioning round, including the
	// wait for the handoff document. Default 120s.
	ProvisionTimeout time.Duration `yaml:"provision_timeout"`

	// CommandTimeout bounds each device-bridge command. Default 60s.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// ConnectRetries is how many additional endpoints are tried
	// after the first connect failure. Default 2.
	ConnectRetries int `yaml:"connect_retries"`

	// ADBPath is the device-bridge executable. Default "adb".
	ADBPath string `yaml:"adb_path"`

	// VNCURLTemplate formats the interactive viewing address; the
	// placeholders {host} and {port} are substituted from the
	// session's endpoint. Default "vnc://{host}:{port}".
	VNCURLTemplate string `yaml:"vnc_url_template"`

	// VNCPort is the remote-viewing port on sandbox instances.
	// Default 5900.
	VNCPort int `yaml:"vnc_port"`
}

// Load reads, parses, and validates the config file at path, applying
// defaults for unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8002"
	}
	if c.Broker.QueueCapacity <= 0 {
		c.Broker.QueueCapacity = 1024
	}
	if c.Broker.Workers <= 0 {
		c.Broker.Workers = 4
	}
	if c.Broker.SweepInterval <= 0 {
		c.Broker.SweepInterval = 30 * time.Second
	}
	if c.Providers.Timeout <= 0 {
		c.Providers.Timeout = 20 * time.Second
	}
	if c.Providers.MaxAttempts <= 0 {
		c.Providers.MaxAttempts = 3
	}
	if c.Emulator.AutomationBinary == "" {
		c.Emulator.AutomationBinary = "terraform"
	}
	if c.Emulator.DesiredCount <= 0 {
		c.Emulator.DesiredCount = 1
	}
	if c.Emulator.ProvisionTimeout <= 0 {
		c.Emulator.ProvisionTimeout = 120 * time.Second
	}
	if c.Emulator.CommandTimeout <= 0 {
		c.Emulator.CommandTimeout = 60 * time.Second
	}
	if c.Emulator.ConnectRetries == 0 {
		c.Emulator.ConnectRetries = 2
	}
	if c.Emulator.ADBPath == "" {
		c.Emulator.ADBPath = "adb"
	}
	if c.Emulator.VNCURLTemplate == "" {
		c.Emulator.VNCURLTemplate = "vnc://{host}:{port}"
	}
	if c.Emulator.VNCPort <= 0 {
		c.Emulator.VNCPort = 5900
	}
}

// Validate checks fields that have no sensible default.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path is required")
	}
	if c.ArtifactDir == "" {
		return fmt.Errorf("artifact_dir is required")
	}
	if c.Providers.InferenceURL == "" {
		return fmt.Errorf("providers.inference_url is required")
	}
	if c.Providers.ReputationURL == "" {
		return fmt.Errorf("providers.reputation_url is required")
	}
	if c.Emulator.AutomationDir == "" {
		return fmt.Errorf("emulator.automation_dir is required")
	}
	if c.Emulator.InstancesFile == "" {
		return fmt.Errorf("emulator.instances_file is required")
	}
	return nil
}
