package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/seqprep/seqprep"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Batcher   BatcherConfig   `mapstructure:"batcher"`
}

// DataConfig stores corpus and cache locations.
type DataConfig struct {
	Dir               string         `mapstructure:"dir"`
	CacheDir          string         `mapstructure:"cacheDir"`
	Database          DatabaseConfig `mapstructure:"database"`
	ShuffleBufferSize int            `mapstructure:"shuffleBufferSize"`
}

// DatabaseConfig stores database connection details for the example cache.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"`
}

// TokenizerConfig stores vocabulary model settings.
type TokenizerConfig struct {
	Mode      string `mapstructure:"mode"`
	ModelPath string `mapstructure:"modelPath"`
	MaxSeqLen int    `mapstructure:"maxSeqLen"`
}

// BatcherConfig stores default batch geometry.
type BatcherConfig struct {
	BatchSizePerDevice int `mapstructure:"batchSizePerDevice"`
	EvalBatchSize      int `mapstructure:"evalBatchSize"`
	BucketLength       int `mapstructure:"bucketLength"`
	MaxEvalLength      int `mapstructure:"maxEvalLength"`
	PadID              int `mapstructure:"padId"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("data.dir", internal.DefaultDataDir)
	viper.SetDefault("data.cacheDir", internal.DefaultCacheDir)
	viper.SetDefault("data.database.dsn", internal.DefaultDatabaseDSN)
	viper.SetDefault("data.database.type", internal.DefaultDatabaseType)
	viper.SetDefault("data.shuffleBufferSize", 1024)

	viper.SetDefault("tokenizer.mode", internal.DefaultTokenizerMode)
	viper.SetDefault("tokenizer.maxSeqLen", internal.DefaultMaxSeqLen)

	viper.SetDefault("batcher.batchSizePerDevice", 32)
	viper.SetDefault("batcher.evalBatchSize", 32)
	viper.SetDefault("batcher.bucketLength", 32)
	viper.SetDefault("batcher.maxEvalLength", 512)

	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores in env var names e.g. tokenizer.modelPath becomes TOKENIZER_MODELPATH

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults will be used. This is not an error for the application to halt on.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
