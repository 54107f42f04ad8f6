// Package config loads the limews YAML configuration file.
//
// The file has three sections, all optional:
//
//	log_level: info
//
//	transport:
//	  handshake_timeout: 10s
//	  close_timeout: 5s
//	  send_buffer_size: 256
//	  headers:
//	    Authorization: Key dGVzdA==
//
//	server:
//	  addr: ":8124"
//	  path: /
//	  allowed_origins: ["*"]
//	  rate_limit:
//	    enabled: true
//	    messages_per_second: 100
//	    burst: 200
//
// Durations are Go duration strings. Missing values keep the defaults returned by
// Default, and the CLI flags override whatever the file sets.
package config
