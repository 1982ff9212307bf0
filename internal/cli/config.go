package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/cwbaker/persist"
)

const defaultConfigName = "persist.toml"

// Config is the optional TOML configuration file.
//
//	encoding = "xml"
//	log_level = "debug"
//
//	[store]
//	path = "graphs.db"
//	bucket = "graphs"
//	compress = true
//
//	[keywords]
//	address = "id"
type Config struct {
	Encoding persist.Encoding `toml:"encoding"`
	LogLevel string           `toml:"log_level"`
	Store    StoreConfig      `toml:"store"`
	Keywords persist.Keywords `toml:"keywords"`
}

type StoreConfig struct {
	Path     string `toml:"path"`
	Bucket   string `toml:"bucket"`
	Compress bool   `toml:"compress"`
}

func defaultConfig() Config {
	return Config{Encoding: persist.XML}
}

// loadConfig reads path, or ./persist.toml when path is empty. A missing
// default file yields the defaults; a missing explicit file is an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		path = defaultConfigName
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config: %s: unknown key %s", path, undecoded[0])
	}
	return cfg, nil
}
