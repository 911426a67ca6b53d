// Package config loads optional YAML configuration for the retry policy
// and the cache TTL default, falling back to
// the same programmatic defaults used when no file is supplied. The
// loader itself (read file, yaml.Unmarshal into a plain struct) follows
// the pattern cmd/cli/devnet.go uses elsewhere in the example pack for
// testnet configuration.
package config
