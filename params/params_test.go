// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package params

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hbft-labs/dynhb/consensus/dynhb"
	"github.com/hbft-labs/dynhb/crypto"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileTOML(t *testing.T) {
	sk, err := crypto.GenerateSecretKey()
	require.NoError(t, err)
	pkHex := "0x" + hex.EncodeToString(sk.PublicKey().Bytes())

	path := writeConfig(t, "node.toml", `
data_dir = "/tmp/dynhb"
listen_addr = "0.0.0.0:30400"
log_level = "debug"
max_future_epochs = 5
encryption_schedule = "every-n-epochs"
encryption_schedule_n = 10
subset_handling_strategy = "incremental"

[[genesis]]
id = "0x0000000000000000000000000000000000000a"
public_key = "`+pkHex+`"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/dynhb", cfg.DataDir)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, uint64(5), cfg.MaxFutureEpochs)
	require.Len(t, cfg.Genesis, 1)

	hbParams := cfg.HoneyBadgerParams()
	require.Equal(t, uint64(5), hbParams.MaxFutureEpochs)
	require.Equal(t, dynhb.EncryptEveryNEpochs, hbParams.EncryptionSchedule.Mode)
	require.Equal(t, dynhb.SubsetIncremental, hbParams.SubsetHandlingStrategy)

	validators, err := cfg.GenesisPubKeyMap()
	require.NoError(t, err)
	require.Equal(t, 1, validators.Len())
}

func TestLoadFileYAML(t *testing.T) {
	path := writeConfig(t, "node.yaml", `
data_dir: /tmp/dynhb-yaml
log_level: warn
max_future_epochs: 2
encryption_schedule: never
subset_handling_strategy: all
genesis: []
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/dynhb-yaml", cfg.DataDir)
	require.Equal(t, "warn", cfg.LogLevel)

	hbParams := cfg.HoneyBadgerParams()
	require.Equal(t, dynhb.EncryptNever, hbParams.EncryptionSchedule.Mode)
	require.Equal(t, dynhb.SubsetAll, hbParams.SubsetHandlingStrategy)
}

func TestLoadFileDefaultsExtensionlessToTOML(t *testing.T) {
	path := writeConfig(t, "node", `data_dir = "/tmp/dynhb-notoml"`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/dynhb-notoml", cfg.DataDir)
}

func TestLoadFileUnrecognizedExtension(t *testing.T) {
	path := writeConfig(t, "node.ini", "data_dir = /tmp")
	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestGenesisPubKeyMapRejectsBadKey(t *testing.T) {
	cfg := Config{Genesis: []GenesisValidator{{ID: "0x0a", PublicKey: "0xnotvalidhex"}}}
	_, err := cfg.GenesisPubKeyMap()
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, uint64(3), cfg.MaxFutureEpochs)
}
