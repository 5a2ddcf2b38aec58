// Package config provides access to the hierarchical configuration of VFS
// storage tools.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is a prefix of environment variables overriding configuration
// values, e.g. NEOFS_VFS_STORAGE_PATH.
const EnvPrefix = "neofs_vfs"

const (
	separator    = "."
	envSeparator = "_"
)

// Config represents a group of named values structured by tree type.
//
// Sub-trees are named configuration sub-sections, leaves are named
// configuration values.
type Config struct {
	v *viper.Viper

	path []string
}

// Option is an option of Config's constructor.
type Option func(*opts)

type opts struct {
	path string
}

// WithConfigFile returns option to read configuration from the file.
func WithConfigFile(path string) Option {
	return func(o *opts) {
		o.path = path
	}
}

// New creates a new Config instance. Values are read from the config file if
// one is provided and from the environment.
func New(options ...Option) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(separator, envSeparator))

	o := new(opts)
	for i := range options {
		options[i](o)
	}

	if o.path != "" {
		v.SetConfigFile(o.path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", o.path, err)
		}
	}

	return &Config{v: v}, nil
}

// Viper returns the underlying viper instance.
func (x *Config) Viper() *viper.Viper {
	return x.v
}

// Sub returns subsection of the Config by name.
func (x *Config) Sub(name string) *Config {
	return &Config{
		v:    x.v,
		path: append(x.path[:len(x.path):len(x.path)], name),
	}
}

// Value returns configuration value by name.
//
// Result can be casted to a particular type via corresponding function
// (e.g. String). Note: casting via Go `.()` operator is not recommended.
func (x *Config) Value(name string) any {
	return x.v.Get(strings.Join(append(x.path[:len(x.path):len(x.path)], name), separator))
}

// Set sets the value by name in the current section. It takes precedence
// over all other sources.
func (x *Config) Set(name string, value any) {
	x.v.Set(strings.Join(append(x.path[:len(x.path):len(x.path)], name), separator), value)
}
