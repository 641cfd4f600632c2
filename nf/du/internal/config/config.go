// Package config loads the DU configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the DU configuration
type Config struct {
	DU            DUConfig            `yaml:"du"`
	F1            F1Config            `yaml:"f1"`
	Cells         []CellConfig        `yaml:"cells"`
	TA            TAConfig            `yaml:"ta"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DUConfig represents the DU identity
type DUConfig struct {
	GNBDUID   uint64 `yaml:"gnb_du_id"`
	Name      string `yaml:"name"`
	MaxUEs    int    `yaml:"max_ues"`
	MaxSetupRetries int `yaml:"max_setup_retries"`
}

// F1Config represents the F1-C transport configuration
type F1Config struct {
	BindAddress    string `yaml:"bind_address"`
	ConnectAddress string `yaml:"connect_address"`
}

// CellConfig represents one served cell
type CellConfig struct {
	NRCellID uint64 `yaml:"nr_cell_id"`
	PCI      uint16 `yaml:"pci"`
	TAC      uint32 `yaml:"tac"`
	MCC      string `yaml:"mcc"`
	MNC      string `yaml:"mnc"`
	// ULSCSKHz is the uplink subcarrier spacing in kHz (15, 30, 60, 120).
	ULSCSKHz uint32 `yaml:"ul_scs_khz"`
	// MIB and SIB1 are the packed system information containers, hex
	// encoded.
	MIB  string `yaml:"mib"`
	SIB1 string `yaml:"sib1"`
}

// TAConfig represents the timing advance adaptation parameters
type TAConfig struct {
	MeasurementSlotPeriod int     `yaml:"ta_measurement_slot_period"`
	ULSINRThreshold       float64 `yaml:"ta_update_measurement_ul_sinr_threshold"`
	CmdOffsetThreshold    int     `yaml:"ta_cmd_offset_threshold"`
}

// ObservabilityConfig represents metrics exposure
type ObservabilityConfig struct {
	MetricsPort int `yaml:"metrics_port"`
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
	if len(cfg.Cells) == 0 {
		return nil, fmt.Errorf("no cells configured")
	}
	return cfg, nil
}
