// Package config handles configuration loading for agent-console.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion, then validated before any component touches the network.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	store:
//	  api_key: "${STORE_API_KEY}"
//
// Syntax: ${VAR_NAME}. Variables may come from the process environment or
// from a .env file loaded at startup.
//
// # Configuration Sections
//
// Remote store:
//
//	store:
//	  url: "https://project.example.co"
//	  api_key: "${STORE_API_KEY}"
//
// Automation webhooks (either URL may be omitted; the operation that needs
// a missing endpoint reports a configuration error instead of attempting a
// network call):
//
//	webhooks:
//	  message_url: "${MESSAGE_WEBHOOK_URL}"
//	  bot_status_url: "${BOT_STATUS_WEBHOOK_URL}"
//
// Operator surface:
//
//	operator:
//	  profile_path: "/home/op/.config/agent-console/profile.toml"  # optional override
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates that store.url and store.api_key are present. Webhook
// URLs are intentionally optional, see above.
package config
