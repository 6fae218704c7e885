// Package version reports build information for /info and outgoing
// User-Agent headers. Values are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/audioscribe/version.Version=1.2.0" ./cmd/audioscribe
//
// Unset values fall back to the module's embedded VCS settings.
package version
