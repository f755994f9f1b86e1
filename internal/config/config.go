// Package config loads process configuration from an optional YAML file,
// command-line flags, and environment variables, in that order of
// precedence (flags win over the file, env vars seed flag defaults),
// following the flag+env pattern this module grew out of.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Asset is one configured (symbol, upstream feed id) pair (spec §6).
type Asset struct {
	Symbol string
	FeedID string
}

// AssetList is the parsed form of the comma-separated
// "SYMBOL:feed_id,SYMBOL:feed_id,..." configuration string.
type AssetList []Asset

// Symbols returns the ordered list of asset symbols.
func (a AssetList) Symbols() []string {
	out := make([]string, len(a))
	for i, asset := range a {
		out[i] = asset.Symbol
	}
	return out
}

// ParseAssetList parses the "SYMBOL:feed_id[,SYMBOL:feed_id...]" format.
// Any malformed or duplicate entry is a fatal configuration error, not a
// runtime surprise (spec §9).
func ParseAssetList(raw string) (AssetList, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("assets_feeds: empty")
	}

	parts := strings.Split(raw, ",")
	out := make(AssetList, 0, len(parts))
	seen := make(map[string]bool, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("assets_feeds: malformed entry %q (want SYMBOL:feed_id)", part)
		}
		symbol := strings.TrimSpace(fields[0])
		feedID := strings.TrimSpace(fields[1])
		if symbol == "" || feedID == "" {
			return nil, fmt.Errorf("assets_feeds: malformed entry %q (empty symbol or feed id)", part)
		}
		if symbol != strings.ToUpper(symbol) {
			return nil, fmt.Errorf("assets_feeds: symbol %q must be uppercase", symbol)
		}
		if seen[symbol] {
			return nil, fmt.Errorf("assets_feeds: duplicate symbol %q", symbol)
		}
		seen[symbol] = true
		out = append(out, Asset{Symbol: symbol, FeedID: feedID})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("assets_feeds: no valid entries")
	}
	return out, nil
}

// fileConfig is the optional YAML layer read before flags/env are applied.
type fileConfig struct {
	AssetsFeeds   string `yaml:"assets_feeds"`
	StoreURI      string `yaml:"store_uri"`
	SnapshotPath  string `yaml:"snapshot_path"`
	FetchSeconds  int    `yaml:"fetch_interval_seconds"`
	UpdateSeconds int    `yaml:"update_interval_seconds"`
	CleanHours    int    `yaml:"clean_interval_hours"`
	HealthPort    int    `yaml:"health_port"`
}

// AggregatorConfig holds the Aggregator's configuration (spec §4.1, §6).
type AggregatorConfig struct {
	Assets        AssetList
	OracleURL     string
	StoreURI      string
	SnapshotPath  string
	FetchInterval time.Duration
	HealthPort    int
}

// DownsamplerConfig holds the Downsampler's configuration (spec §4.3, §6).
type DownsamplerConfig struct {
	StoreURI      string
	CleanInterval time.Duration
	HealthPort    int
	ArchiveDir    string
}

// PresenceConfig holds one Presence Worker's configuration (spec §4.4, §6).
type PresenceConfig struct {
	Asset          string
	Token          string
	GatewayURL     string
	StoreURI       string
	SnapshotPath   string
	UpdateInterval time.Duration
	FetchInterval  time.Duration
	HealthPort     int
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file: %w", err)
	}
	return fc, nil
}

// LoadAggregator parses flags/env (and an optional -config YAML file) into
// an AggregatorConfig. Fatal on malformed asset configuration.
func LoadAggregator(args []string) (*AggregatorConfig, error) {
	fs := flag.NewFlagSet("aggregator", flag.ContinueOnError)

	configPath := fs.String("config", envStr("CONFIG_FILE", ""), "optional YAML config file")
	assetsFlag := fs.String("assets", "", "comma-separated SYMBOL:feed_id list (overrides config/env)")
	oracleURL := fs.String("oracle-url", envStr("ORACLE_URL", ""), "upstream oracle batched price endpoint")
	storeURI := fs.String("store-uri", envStr("STORE_URI", "mongodb://localhost:27017/pricecore"), "time-series store connection URI")
	snapshotPath := fs.String("snapshot-path", envStr("SNAPSHOT_PATH", "/var/run/pricecore/snapshot.json"), "atomic snapshot file path")
	fetchSeconds := fs.Int("fetch-interval", envInt("T_FETCH_SECONDS", 12), "upstream fetch cadence in seconds")
	healthPort := fs.Int("health-port", envInt("HEALTH_PORT", 8080), "health endpoint port")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fc, err := loadFile(*configPath)
	if err != nil {
		return nil, err
	}

	assetsRaw := envStr("ASSETS_FEEDS", fc.AssetsFeeds)
	if *assetsFlag != "" {
		assetsRaw = *assetsFlag
	}
	assets, err := ParseAssetList(assetsRaw)
	if err != nil {
		return nil, fmt.Errorf("fatal config error: %w", err)
	}

	cfg := &AggregatorConfig{
		Assets:        assets,
		OracleURL:     *oracleURL,
		StoreURI:      overrideStr(*storeURI, fc.StoreURI),
		SnapshotPath:  overrideStr(*snapshotPath, fc.SnapshotPath),
		FetchInterval: time.Duration(overrideInt(*fetchSeconds, fc.FetchSeconds)) * time.Second,
		HealthPort:    overrideInt(*healthPort, fc.HealthPort),
	}
	return cfg, nil
}

// LoadDownsampler parses flags/env for the Downsampler process.
func LoadDownsampler(args []string) (*DownsamplerConfig, error) {
	fs := flag.NewFlagSet("downsampler", flag.ContinueOnError)

	configPath := fs.String("config", envStr("CONFIG_FILE", ""), "optional YAML config file")
	storeURI := fs.String("store-uri", envStr("STORE_URI", "mongodb://localhost:27017/pricecore"), "time-series store connection URI")
	cleanHours := fs.Int("clean-interval", envInt("T_CLEAN_HOURS", 24), "downsample cadence in hours")
	healthPort := fs.Int("health-port", envInt("HEALTH_PORT", 8080), "health endpoint port")
	archiveDir := fs.String("archive-dir", envStr("ARCHIVE_DIR", ""), "directory for gzipped T3 archives before expiry (empty = disabled)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fc, err := loadFile(*configPath)
	if err != nil {
		return nil, err
	}

	cfg := &DownsamplerConfig{
		StoreURI:      overrideStr(*storeURI, fc.StoreURI),
		CleanInterval: time.Duration(overrideInt(*cleanHours, fc.CleanHours)) * time.Hour,
		HealthPort:    overrideInt(*healthPort, fc.HealthPort),
		ArchiveDir:    *archiveDir,
	}
	return cfg, nil
}

// LoadPresence parses flags/env for one Presence Worker process.
func LoadPresence(args []string) (*PresenceConfig, error) {
	fs := flag.NewFlagSet("presenced", flag.ContinueOnError)

	configPath := fs.String("config", envStr("CONFIG_FILE", ""), "optional YAML config file")
	asset := fs.String("asset", envStr("ASSET", ""), "this worker's asset symbol")
	token := fs.String("token", envStr("PRESENCE_TOKEN", ""), "credential for the remote presence API")
	gatewayURL := fs.String("gateway-url", envStr("GATEWAY_URL", ""), "remote presence gateway endpoint")
	storeURI := fs.String("store-uri", envStr("STORE_URI", "mongodb://localhost:27017/pricecore"), "time-series store connection URI")
	snapshotPath := fs.String("snapshot-path", envStr("SNAPSHOT_PATH", "/var/run/pricecore/snapshot.json"), "atomic snapshot file path")
	updateSeconds := fs.Int("update-interval", envInt("T_UPDATE_SECONDS", 12), "presence update cadence in seconds")
	fetchSeconds := fs.Int("fetch-interval", envInt("T_FETCH_SECONDS", 12), "producer (aggregator) fetch cadence in seconds, used to judge snapshot staleness")
	healthPort := fs.Int("health-port", envInt("HEALTH_PORT", 8080), "health endpoint port")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fc, err := loadFile(*configPath)
	if err != nil {
		return nil, err
	}

	assetVal := *asset
	if assetVal == "" {
		return nil, fmt.Errorf("fatal config error: asset is required")
	}
	if assetVal != strings.ToUpper(assetVal) {
		return nil, fmt.Errorf("fatal config error: asset %q must be uppercase", assetVal)
	}
	if *token == "" {
		return nil, fmt.Errorf("fatal config error: token is required")
	}

	cfg := &PresenceConfig{
		Asset:          assetVal,
		Token:          *token,
		GatewayURL:     *gatewayURL,
		StoreURI:       overrideStr(*storeURI, fc.StoreURI),
		SnapshotPath:   overrideStr(*snapshotPath, fc.SnapshotPath),
		UpdateInterval: time.Duration(overrideInt(*updateSeconds, fc.UpdateSeconds)) * time.Second,
		FetchInterval:  time.Duration(*fetchSeconds) * time.Second,
		HealthPort:     overrideInt(*healthPort, fc.HealthPort),
	}
	return cfg, nil
}

func overrideStr(flagVal, fileVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return fileVal
}

func overrideInt(flagVal, fileVal int) int {
	if flagVal != 0 {
		return flagVal
	}
	return fileVal
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
