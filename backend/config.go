package backend

import (
	"crypto/rand"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

var Config ServerConfig

func init() {
	flag.StringVar(&Config.HTTP.Listen, "http", ":8080", "address to serve http on")
	flag.StringVar(&Config.DB.DSN, "psql", "", "postgres dsn; serve from memory if empty")
	flag.StringVar(&Config.Cookie.KeyFile, "cookie-key-file", "", "file holding the cookie hash key")
}

type ServerConfig struct {
	HTTP   HTTPConfig     `yaml:"http"`
	DB     DatabaseConfig `yaml:"database,omitempty"`
	Cookie CookieConfig   `yaml:"cookie,omitempty"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn,omitempty"`
}

type CookieConfig struct {
	KeyFile string `yaml:"key-file,omitempty"`
}

// LoadFromFile merges settings from a yaml file over whatever the
// flags established.
func (cfg *ServerConfig) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %s", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%s: %s", path, err)
	}
	return nil
}

// Key returns the cookie authentication key. Without a key file a
// random key is generated, which invalidates identity cookies across
// restarts; fine for dev, not for production.
func (c *CookieConfig) Key() ([]byte, error) {
	if c.KeyFile == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		return key, nil
	}

	key, err := os.ReadFile(c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("cookie-key-file: %s", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("cookie-key-file: key must be at least 32 bytes")
	}
	return key[:32], nil
}
