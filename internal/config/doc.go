// Package config provides simple, local-first configuration management for the
// MACA engine.
//
// This package implements a minimal configuration system: a single JSON file
// stored in the user's .maca/ directory, with sensible defaults and
// environment variable expansion for secrets.
//
// Configuration File Structure:
//
//	.maca/
//	├── config.json        # Main configuration
//	└── .gitignore         # Smart defaults for what to ignore
//
// The config.json file contains simple key-value settings:
//
//	{
//	  "analysis_url": "https://api.openai.com",
//	  "analysis_model": "gpt-4o-mini",
//	  "analysis_api_key": "${MACA_API_KEY}",
//	  "auto_on_upload": true,
//	  "auto_on_select": false,
//	  "fuse_enabled": true,
//	  "fuse_max": 24,
//	  "bridge_listen_addr": "127.0.0.1:17621"
//	}
//
// Environment Variable Support:
//
// Configuration values can reference environment variables using $VAR or
// ${VAR} syntax, so API keys and application passwords never have to live in
// the file itself.
//
// Design Philosophy:
//
// - Local-first: everything lives under .maca/
// - Simple: single JSON file, no complex hierarchies
// - Smart defaults: works out of the box against a local endpoint
//
// Example usage:
//
//	manager := config.NewManager(homeDir)
//	if err := manager.Load(); err != nil {
//		log.Fatal(err)
//	}
//
//	cfg := manager.Get()
//	fmt.Println("bridge:", cfg.BridgeListenAddr)
//
//	// Update a setting
//	manager.Set("fuse_max", "30")
package config
