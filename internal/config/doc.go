// Package config loads runtime configuration from multiple sources (YAML or
// JSONC files, environment variables, CLI flags) with precedence: CLI flags >
// config file > Environment variables > Defaults. It derives the build mode
// once from NODE_ENV and fixes the project root to an absolute path so the
// resolver stays free of I/O.
package config
