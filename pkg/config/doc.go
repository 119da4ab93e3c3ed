// Package config loads gatekeeper configuration from GATEKEEPER_* environment
// variables, optionally seeded from a .env file.
//
// # Configuration Structure
//
// Server settings:
//
//	GATEKEEPER_PORT="8080"
//	GATEKEEPER_HEALTH_PORT="9090"
//	GATEKEEPER_REQUEST_TIMEOUT="10s"
//	GATEKEEPER_UPSTREAM_URL="http://backend:8080"
//	GATEKEEPER_TRUSTED_PROXIES="10.0.0.0/8"  # forwarding headers believed only from these peers
//
// Token settings:
//
//	GATEKEEPER_TOKEN_SECRET="..."  # at least 32 bytes
//	GATEKEEPER_TOKEN_TTL="24h"
//
// Rate limiting:
//
//	GATEKEEPER_RATELIMIT_STORE="redis"  # memory, redis
//	GATEKEEPER_RATELIMIT_FAIL_CLOSED="false"
//	GATEKEEPER_RATELIMIT_POLICIES="login=10/15m,search=30/1m/subject"
//	GATEKEEPER_REDIS_ADDR="redis:6379"
//
// Routes:
//
//	GATEKEEPER_ROUTES_FILE="/etc/gatekeeper/routes.yaml"
//
// Audit trail:
//
//	GATEKEEPER_AUDIT_LOG="true"  # audit events in the application log
//	GATEKEEPER_AUDIT_DIR="/var/log/gatekeeper/audit"  # JSON lines file sink
//	GATEKEEPER_AUDIT_MAX_SIZE="104857600"
//	GATEKEEPER_AUDIT_MAX_FILES="10"
//
// Observability settings:
//
//	GATEKEEPER_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEKEEPER_OTEL_ENABLED="true"
//	GATEKEEPER_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/ratelimit: policies built by RateLimitConfig.BuildPolicies
//   - pkg/observability: log level and OpenTelemetry settings
package config
