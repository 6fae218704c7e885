// Package security builds TLS configurations from YAML settings: the
// listener side for the HTTP server (optionally requiring client
// certificates) and the client side for outbound calls to recognition
// backends.
//
//	tlsCfg, err := cfg.TLS.Build()       // server
//	tlsCfg, err := cfg.TLS.BuildClient() // client
//
// Both return nil when the section is empty so callers fall back to
// plaintext.
package security
