package bootstrap

import (
	"github.com/kbukum/audioscribe/config"
)

// Config is the constraint for application configuration types.
// Any struct embedding config.ServiceConfig satisfies it via promoted methods
// as long as it does not shadow them.
//
//	type AppConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Server server.Config `yaml:"server" mapstructure:"server"`
//	}
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
