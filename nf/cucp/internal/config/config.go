// Package config loads the CU-CP configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the CU-CP configuration
type Config struct {
	GNB           GNBConfig           `yaml:"gnb"`
	NG            NGConfig            `yaml:"ng"`
	F1            F1Config            `yaml:"f1"`
	E1            E1Config            `yaml:"e1"`
	RRC           RRCConfig           `yaml:"rrc"`
	FiveQI        []FiveQIConfig      `yaml:"five_qi_config"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// GNBConfig represents the RAN node identity
type GNBConfig struct {
	GNBID       uint32 `yaml:"gnb_id"`
	RANNodeName string `yaml:"ran_node_name"`
	MCC         string `yaml:"mcc"`
	MNC         string `yaml:"mnc"`
	TAC         uint32 `yaml:"tac"`
	MaxUEsPerDU int    `yaml:"max_ues_per_du"`
}

// NGConfig represents the NG-C transport configuration
type NGConfig struct {
	BindAddress     string `yaml:"bind_address"`
	ConnectAddress  string `yaml:"connect_address"`
	MaxSetupRetries int    `yaml:"max_setup_retries"`
}

// F1Config represents the F1-C transport configuration
type F1Config struct {
	BindAddress string `yaml:"bind_address"`
}

// E1Config represents the E1 transport configuration
type E1Config struct {
	BindAddress string `yaml:"bind_address"`
}

// RRCConfig represents the RRC procedure guard windows in milliseconds
type RRCConfig struct {
	SetupTimeoutMs    int `yaml:"setup_timeout_ms"`
	SMCTimeoutMs      int `yaml:"smc_timeout_ms"`
	ReconfigTimeoutMs int `yaml:"reconfig_timeout_ms"`
}

// FiveQIConfig maps one 5QI to its PDCP parameters
type FiveQIConfig struct {
	FiveQI         uint16 `yaml:"five_qi"`
	SNSizeDL       uint8  `yaml:"pdcp_sn_size_dl"`
	SNSizeUL       uint8  `yaml:"pdcp_sn_size_ul"`
	DiscardTimerMs uint16 `yaml:"discard_timer_ms"`
	TReorderingMs  uint16 `yaml:"t_reordering_ms"`
}

// ObservabilityConfig represents metrics and status exposure
type ObservabilityConfig struct {
	MetricsPort int `yaml:"metrics_port"`
	StatusPort  int `yaml:"status_port"`
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.GNB.MCC == "" || cfg.GNB.MNC == "" {
		return nil, fmt.Errorf("plmn not configured")
	}
	return cfg, nil
}
