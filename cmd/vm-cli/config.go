package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/govm-net/helloworld/core"
	"github.com/govm-net/helloworld/types"
	"github.com/govm-net/helloworld/vm"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultRepoDir     = ".code"
	defaultDBPath      = "vm.db"
	defaultContextType = "db"
)

// Config holds the settings shared by all commands. Values come from flags,
// VMCLI_* environment variables and vm-cli.yaml, in that order.
type Config struct {
	Repo     string `mapstructure:"repo"`
	DB       string `mapstructure:"db"`
	Context  string `mapstructure:"context"`
	GasLimit int64  `mapstructure:"gas-limit"`
	Height   uint64 `mapstructure:"height"`
	LogLevel string `mapstructure:"log-level"`
}

func defaultConfig() *Config {
	return &Config{
		Repo:     defaultRepoDir,
		DB:       defaultDBPath,
		Context:  defaultContextType,
		Height:   1,
		LogLevel: "warn",
	}
}

// parseConfig loads vm-cli.yaml from ./ or the --config file
func parseConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VMCLI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", cfgFile)
		}
	} else {
		v.SetConfigName("vm-cli")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, "read config file")
			}
		}
	}

	conf := defaultConfig()
	if err := v.Unmarshal(conf); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return conf, nil
}

func setupLogger(cmd *cobra.Command, conf *Config) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(conf.LogLevel)); err != nil {
		return errors.Wrapf(err, "bad log level %q", conf.LogLevel)
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

// openEngine creates the engine and puts the transaction of sender into the
// current block
// blockSelector is implemented by contexts that keep recorded blocks
type blockSelector interface {
	WithBlock(height uint64) error
}

// selectBlock reuses a block already recorded at height, so repeated
// commands at one height share its time and hash; otherwise it records one.
func selectBlock(bc types.BlockchainContext, height uint64, now time.Time) error {
	if bs, ok := bc.(blockSelector); ok {
		if err := bs.WithBlock(height); err == nil {
			slog.Debug("using recorded block", "height", height)
			return nil
		}
	}
	blockHash := core.GetHash([]byte(fmt.Sprintf("block/%d", height)))
	if err := bc.SetBlockInfo(height, now.Unix(), blockHash); err != nil {
		return errors.Wrap(err, "set block info")
	}
	return nil
}

func openEngine(cmd *cobra.Command, sender core.Address) (*vm.Engine, error) {
	conf, err := parseConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := setupLogger(cmd, conf); err != nil {
		return nil, err
	}

	config := &vm.Config{
		RepositoryDir: conf.Repo,
		ContextType:   conf.Context,
		ContextParams: map[string]any{"db_path": conf.DB},
		GasLimit:      conf.GasLimit,
	}
	slog.Info("creating VM engine", "config", config)

	engine, err := vm.NewEngine(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create VM engine")
	}

	now := time.Now()
	bc := engine.GetContext()
	if err := selectBlock(bc, conf.Height, now); err != nil {
		engine.Close()
		return nil, err
	}
	txHash := core.GetHash([]byte(fmt.Sprintf("%s/%s/%d", cmd.Name(), sender, now.UnixNano())))
	if err := bc.SetTransactionInfo(txHash, sender, core.ZeroAddress, 0); err != nil {
		engine.Close()
		return nil, errors.Wrap(err, "set transaction info")
	}
	return engine, nil
}

func parseAddress(s string) (core.Address, error) {
	var addr core.Address
	if err := addr.UnmarshalText([]byte(s)); err != nil {
		return core.ZeroAddress, err
	}
	return addr, nil
}

func parseHash(s string) (core.Hash, error) {
	var h core.Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return core.ZeroHash, err
	}
	return h, nil
}

// parseParam decodes a hex parameter, with or without 0x prefix
func parseParam(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "parameter must be hex")
	}
	return b, nil
}
