// Package config defines configuration structures for the batchdl CLI.
//
// Configuration is layered, later sources overriding earlier ones:
//   - Defaults
//   - YAML configuration file
//   - .env file (only for variables not already in the environment)
//   - Environment variables (BATCHDL_ prefix)
//   - Command-line flags that were set explicitly
//
// # YAML
//
//	link_file: links.txt
//	output_dir: ./downloads
//	mode: range        # all | single | range
//	start: 0           # 0-based, inclusive
//	end: 9
//	threads: 4
//	resume: true
//	retries: 3
//	timeout: 60s
//	proxy: http://127.0.0.1:7890
//	state_url: s3://bucket/prefix?region=us-east-1
//	checkpoint:
//	  interval: 2s
//	  bytes: 8MB
//	retry:
//	  backoff: 1s
//	  max_backoff: 30s
package config
