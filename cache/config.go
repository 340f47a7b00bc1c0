package cache

import (
	"github.com/cockroachdb/errors"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// configFile is the YAML shape for a named cache table:
//
//	caches:
//	  products:
//	    ttl: 15m
//	    max_size: 200
//	    strategy: lru
//	    persistent: true
type configFile struct {
	Caches map[string]configEntry `yaml:"caches"`
}

type configEntry struct {
	TTL        string   `yaml:"ttl"`
	MaxSize    int      `yaml:"max_size"`
	Strategy   Strategy `yaml:"strategy"`
	Persistent bool     `yaml:"persistent"`
}

// ParseConfigs reads a named cache table from YAML. TTLs are human
// duration strings ("90s", "15m", "1h", "2d"). Unknown strategies and
// missing fields fall back to the package defaults at construction time.
func ParseConfigs(data []byte) (map[string]Config, error) {
	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "cache: parsing config")
	}
	if len(file.Caches) == 0 {
		return nil, errors.New("cache: config defines no caches")
	}
	out := make(map[string]Config, len(file.Caches))
	for name, entry := range file.Caches {
		cfg := Config{
			MaxSize:    entry.MaxSize,
			Strategy:   entry.Strategy,
			Persistent: entry.Persistent,
		}
		if entry.TTL != "" {
			ttl, err := str2duration.ParseDuration(entry.TTL)
			if err != nil {
				return nil, errors.Wrapf(err, "cache: invalid ttl for %q", name)
			}
			cfg.TTL = ttl
		}
		if entry.Strategy != "" {
			switch entry.Strategy {
			case StrategyLRU, StrategyFIFO, StrategyLFU:
			default:
				return nil, errors.Newf("cache: unknown strategy %q for %q", entry.Strategy, name)
			}
		}
		out[name] = cfg
	}
	return out, nil
}

// MustParseConfigs is ParseConfigs for static configuration; it panics on
// error.
func MustParseConfigs(data []byte) map[string]Config {
	configs, err := ParseConfigs(data)
	if err != nil {
		panic(err)
	}
	return configs
}
