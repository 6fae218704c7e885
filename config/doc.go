// Package config loads service configuration from defaults, a YAML file,
// an optional .env file and prefixed environment variables, in that order
// of increasing precedence. Viper performs the merge.
//
// # Usage
//
//	cfg := defaultConfig()
//	err := config.LoadConfig("audioscribe", &cfg)
//
// Environment variables use the upper-snake service name as prefix with
// underscore-separated paths (e.g. AUDIOSCRIBE_SERVER_PORT).
package config
