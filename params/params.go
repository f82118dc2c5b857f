// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package params holds the configuration surface a dynhb-node host loads
// at startup: the atomic-broadcast collaborator's tunables, the genesis
// validator set, and networking/logging knobs that live outside the
// deterministic core.
package params

import (
	"fmt"
	"os"
	"strings"

	"github.com/naoina/toml"
	"gopkg.in/yaml.v3"

	"github.com/hbft-labs/dynhb/common"
	"github.com/hbft-labs/dynhb/consensus/dynhb"
	"github.com/hbft-labs/dynhb/crypto"
)

// GenesisValidator is one validator entry in a config file: a hex node id
// and hex-encoded compressed public key.
type GenesisValidator struct {
	ID        string `toml:"id" yaml:"id"`
	PublicKey string `toml:"public_key" yaml:"public_key"`
}

// Config is the full on-disk configuration for a dynhb-node host.
type Config struct {
	// DataDir is where the host's replay index (batchstore) and latest
	// join plan (joinplan.json) live.
	DataDir string `toml:"data_dir" yaml:"data_dir"`

	// ListenAddr is the host's peer-to-peer listen address (host-level
	// transport, outside the deterministic core).
	ListenAddr string `toml:"listen_addr" yaml:"listen_addr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// Genesis lists the starting validator set for BuildFirstNode / Build.
	Genesis []GenesisValidator `toml:"genesis" yaml:"genesis"`

	MaxFutureEpochs        uint64 `toml:"max_future_epochs" yaml:"max_future_epochs"`
	EncryptionSchedule     string `toml:"encryption_schedule" yaml:"encryption_schedule"`
	EncryptionScheduleN    uint64 `toml:"encryption_schedule_n" yaml:"encryption_schedule_n"`
	SubsetHandlingStrategy string `toml:"subset_handling_strategy" yaml:"subset_handling_strategy"`

	// ArchiveContainerURL, if set, is the Azure Blob container batch
	// records are mirrored to for off-box audit; dynhb-node does not upload
	// join plans there.
	ArchiveContainerURL string `toml:"archive_container_url" yaml:"archive_container_url"`

	// DiscoveryZoneID is the Route53 hosted zone id bootstrap peer records
	// live in. Discovery is disabled unless both this and DiscoveryDomain
	// are set.
	DiscoveryZoneID string `toml:"discovery_zone_id" yaml:"discovery_zone_id"`

	// DiscoveryDomain, if set, is the fully qualified TXT record name
	// bootstrap peer addresses are published under and resolved from.
	DiscoveryDomain string `toml:"discovery_domain" yaml:"discovery_domain"`

	// DiscoveryTTL is the TTL, in seconds, this node publishes its own
	// bootstrap record with. Defaults to 60 if unset.
	DiscoveryTTL int64 `toml:"discovery_ttl" yaml:"discovery_ttl"`

	// LogFile, if set, turns on a rotating on-disk log sink alongside the
	// console one a dynhb-node always writes to.
	LogFile           string `toml:"log_file" yaml:"log_file"`
	LogFileMaxSizeMB  int    `toml:"log_file_max_size_mb" yaml:"log_file_max_size_mb"`
	LogFileMaxBackups int    `toml:"log_file_max_backups" yaml:"log_file_max_backups"`
	LogFileMaxAgeDays int    `toml:"log_file_max_age_days" yaml:"log_file_max_age_days"`
	LogFileCompress   bool   `toml:"log_file_compress" yaml:"log_file_compress"`
}

// DefaultConfig returns the conservative defaults a fresh dynhb-node starts
// from before a config file is loaded over them.
func DefaultConfig() Config {
	return Config{
		DataDir:                "./dynhb-data",
		ListenAddr:             "0.0.0.0:30400",
		LogLevel:               "info",
		MaxFutureEpochs:        3,
		EncryptionSchedule:     "always",
		SubsetHandlingStrategy: "all",
		DiscoveryTTL:           60,
		LogFileMaxSizeMB:       100,
		LogFileMaxBackups:      5,
		LogFileMaxAgeDays:      28,
	}
}

// LoadFile reads a Config from path, dispatching on its extension: .toml
// goes through naoina/toml (the primary format), .yaml/.yml through
// gopkg.in/yaml.v3 (the alternate format for operators who prefer YAML
// manifests).
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("params: reading %s: %w", path, err)
	}
	cfg := DefaultConfig()
	switch ext := strings.ToLower(strings.TrimPrefix(extOf(path), ".")); ext {
	case "toml", "":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("params: parsing toml %s: %w", path, err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("params: parsing yaml %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("params: unrecognized config extension %q", ext)
	}
	return cfg, nil
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

// GenesisPubKeyMap parses the config's genesis validator list into the
// map the engine builder expects.
func (c Config) GenesisPubKeyMap() (dynhb.PubKeyMap, error) {
	out := make(dynhb.PubKeyMap, len(c.Genesis))
	for _, v := range c.Genesis {
		pkBytes := common.FromHex(v.PublicKey)
		pk, err := crypto.PublicKeyFromBytes(pkBytes)
		if err != nil {
			return nil, fmt.Errorf("params: genesis validator %s: %w", v.ID, err)
		}
		out[common.HexToNodeID(v.ID)] = pk
	}
	return out, nil
}

// HoneyBadgerParams converts the config's flat fields into the engine's
// Params type.
func (c Config) HoneyBadgerParams() dynhb.Params {
	mode := dynhb.EncryptAlways
	switch strings.ToLower(c.EncryptionSchedule) {
	case "never":
		mode = dynhb.EncryptNever
	case "every-n-epochs", "every_n_epochs":
		mode = dynhb.EncryptEveryNEpochs
	}
	strategy := dynhb.SubsetAll
	if strings.ToLower(c.SubsetHandlingStrategy) == "incremental" {
		strategy = dynhb.SubsetIncremental
	}
	return dynhb.Params{
		MaxFutureEpochs:        c.MaxFutureEpochs,
		EncryptionSchedule:     dynhb.EncryptionSchedule{Mode: mode, N: c.EncryptionScheduleN},
		SubsetHandlingStrategy: strategy,
	}
}
