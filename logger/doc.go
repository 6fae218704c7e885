// Package logger provides structured logging for audioscribe using zerolog.
//
// It supports JSON and console output, level configuration and
// component-scoped child loggers carrying job and segment fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&cfg, "audioscribe").WithComponent("session")
//	log.WithJob(jobID, "upload").Info("job complete", logger.Fields("segments", 4))
package logger
