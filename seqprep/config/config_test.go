package config

import (
	"os"
	"path/filepath"
	"testing"

	internal "github.com/ZanzyTHEbar/seqprep/seqprep"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	// Reset viper state between tests
	viper.Reset()

	// Save original directory
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	// Create temporary directory for testing
	tempDir, err := os.MkdirTemp("", "seqprep-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	// Change to temp directory
	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	// Change back to original directory
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}

	// Clean up temporary directory
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	// Load config without config file (should use defaults)
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	// Test default values
	assert.Equal(suite.T(), internal.DefaultDataDir, cfg.Data.Dir)
	assert.Equal(suite.T(), internal.DefaultCacheDir, cfg.Data.CacheDir)
	assert.Equal(suite.T(), internal.DefaultDatabaseDSN, cfg.Data.Database.DSN)
	assert.Equal(suite.T(), internal.DefaultDatabaseType, cfg.Data.Database.Type)
	assert.Equal(suite.T(), 1024, cfg.Data.ShuffleBufferSize)

	assert.Equal(suite.T(), internal.DefaultTokenizerMode, cfg.Tokenizer.Mode)
	assert.Equal(suite.T(), internal.DefaultMaxSeqLen, cfg.Tokenizer.MaxSeqLen)
	assert.Empty(suite.T(), cfg.Tokenizer.ModelPath)

	assert.Equal(suite.T(), 32, cfg.Batcher.BatchSizePerDevice)
	assert.Equal(suite.T(), 32, cfg.Batcher.EvalBatchSize)
	assert.Equal(suite.T(), 32, cfg.Batcher.BucketLength)
	assert.Equal(suite.T(), 512, cfg.Batcher.MaxEvalLength)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	// Create a test config file
	configContent := `
data:
  dir: "./test-data"
  cacheDir: "./test-cache"
  database:
    dsn: "test.db"
    type: "sqlite"
  shuffleBufferSize: 64

tokenizer:
  mode: "char"
  modelPath: "./models/en.model"
  maxSeqLen: 512

batcher:
  batchSizePerDevice: 8
  evalBatchSize: 8
  bucketLength: 50
  maxEvalLength: 50
  padId: 0
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	err := os.WriteFile(configFile, []byte(configContent), 0o644)
	require.NoError(suite.T(), err)

	// Load config from file
	cfg, err := LoadConfig(configFile)

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	// Test that values were loaded from file
	assert.Equal(suite.T(), "./test-data", cfg.Data.Dir)
	assert.Equal(suite.T(), "./test-cache", cfg.Data.CacheDir)
	assert.Equal(suite.T(), "test.db", cfg.Data.Database.DSN)
	assert.Equal(suite.T(), "sqlite", cfg.Data.Database.Type)
	assert.Equal(suite.T(), 64, cfg.Data.ShuffleBufferSize)

	assert.Equal(suite.T(), "char", cfg.Tokenizer.Mode)
	assert.Equal(suite.T(), "./models/en.model", cfg.Tokenizer.ModelPath)
	assert.Equal(suite.T(), 512, cfg.Tokenizer.MaxSeqLen)

	assert.Equal(suite.T(), 8, cfg.Batcher.BatchSizePerDevice)
	assert.Equal(suite.T(), 8, cfg.Batcher.EvalBatchSize)
	assert.Equal(suite.T(), 50, cfg.Batcher.BucketLength)
	assert.Equal(suite.T(), 50, cfg.Batcher.MaxEvalLength)
	assert.Equal(suite.T(), 0, cfg.Batcher.PadID)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	// Try to load from non-existent file - this should actually error since we specify an explicit path
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	// Should return error for explicit non-existent file
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	// Create a malformed config file
	malformedContent := `
data:
  dir: "./test-data"
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	err := os.WriteFile(configFile, []byte(malformedContent), 0o644)
	require.NoError(suite.T(), err)

	// Load config from malformed file
	cfg, err := LoadConfig(configFile)

	// Should return error for malformed YAML
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestConfigStructure() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	// Test top-level config structure
	assert.IsType(suite.T(), DataConfig{}, cfg.Data)
	assert.IsType(suite.T(), TokenizerConfig{}, cfg.Tokenizer)
	assert.IsType(suite.T(), BatcherConfig{}, cfg.Batcher)

	// Test nested database structure
	assert.IsType(suite.T(), DatabaseConfig{}, cfg.Data.Database)
	assert.NotEmpty(suite.T(), cfg.Data.Database.DSN)
	assert.NotEmpty(suite.T(), cfg.Data.Database.Type)
}

func (suite *ConfigTestSuite) TestAppConfigGlobal() {
	// Test that AppConfig global variable is set after loading
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	// AppConfig should be set
	assert.Equal(suite.T(), cfg.Data.Dir, AppConfig.Data.Dir)
	assert.Equal(suite.T(), cfg.Tokenizer.Mode, AppConfig.Tokenizer.Mode)
	assert.Equal(suite.T(), cfg.Batcher.BatchSizePerDevice, AppConfig.Batcher.BatchSizePerDevice)
}

// TestConfigTypes tests the configuration type definitions
func TestConfigTypes(t *testing.T) {
	// Test Config instantiation
	config := Config{}
	assert.IsType(t, DataConfig{}, config.Data)
	assert.IsType(t, TokenizerConfig{}, config.Tokenizer)
	assert.IsType(t, BatcherConfig{}, config.Batcher)

	// Test DataConfig instantiation
	dataConfig := DataConfig{}
	assert.IsType(t, "", dataConfig.Dir)
	assert.IsType(t, "", dataConfig.CacheDir)
	assert.IsType(t, DatabaseConfig{}, dataConfig.Database)
	assert.IsType(t, 0, dataConfig.ShuffleBufferSize)

	// Test DatabaseConfig instantiation
	dbConfig := DatabaseConfig{}
	assert.IsType(t, "", dbConfig.DSN)
	assert.IsType(t, "", dbConfig.Type)

	// Test TokenizerConfig instantiation
	tokConfig := TokenizerConfig{}
	assert.IsType(t, "", tokConfig.Mode)
	assert.IsType(t, "", tokConfig.ModelPath)
	assert.IsType(t, 0, tokConfig.MaxSeqLen)

	// Test BatcherConfig instantiation
	batchConfig := BatcherConfig{}
	assert.IsType(t, 0, batchConfig.BatchSizePerDevice)
	assert.IsType(t, 0, batchConfig.EvalBatchSize)
	assert.IsType(t, 0, batchConfig.BucketLength)
	assert.IsType(t, 0, batchConfig.MaxEvalLength)
	assert.IsType(t, 0, batchConfig.PadID)
}

// BenchmarkLoadConfig benchmarks config loading performance
func BenchmarkLoadConfig(b *testing.B) {
	viper.Reset()
	for i := 0; i < b.N; i++ {
		cfg, err := LoadConfig("")
		if err != nil {
			b.Fatal(err)
		}
		_ = cfg
	}
}

// BenchmarkLoadConfigWithFile benchmarks config loading from file
func BenchmarkLoadConfigWithFile(b *testing.B) {
	viper.Reset()

	// Create a temporary config file
	tempDir, err := os.MkdirTemp("", "seqprep-bench-*")
	if err != nil {
		b.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `
data:
  dir: "."
  cacheDir: "./cache"
tokenizer:
  mode: "unigram"
`

	configFile := filepath.Join(tempDir, "config.yaml")
	err = os.WriteFile(configFile, []byte(configContent), 0o644)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			b.Fatal(err)
		}
		_ = cfg
	}
}
