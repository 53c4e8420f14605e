// Package config provides application configuration management from environment variables.
//
// # Overview
//
// LoadConfig reads a .env file when present (github.com/joho/godotenv), then
// the environment, and validates the result. Variables already exported take
// precedence over the file.
//
// # Client settings
//
//	CHARTPAY_BASE_URL="http://localhost:8080"
//	CHARTPAY_TOKEN=""
//	CHARTPAY_EMAIL="trader@example.com"
//	CHARTPAY_TIMEOUT="10s"
//	CHARTPAY_STORAGE_TYPE="memory"  # memory, redis, sqlite
//	CHARTPAY_REDIS_URL="redis://localhost:6379"
//	CHARTPAY_SQLITE_PATH="chartpay.db"
//
// # Server settings
//
//	CHARTPAY_HOST="0.0.0.0"
//	CHARTPAY_PORT="8080"
//	CHARTPAY_POSTGRES_URL="postgres://localhost/chartpay?sslmode=disable"
//	CHARTPAY_REQUEST_TTL="30m"
//	CHARTPAY_SWEEP_SCHEDULE="@every 1m"
//	CHARTPAY_BANK_NAME="Zenith Bank"
//	CHARTPAY_BANK_ACCOUNT_NAME="Chartpay Ltd"
//	CHARTPAY_BANK_ACCOUNT_NUMBER="1012345678"
//	CHARTPAY_PLANS_FILE="plans.yaml"
//	CHARTPAY_ADMIN_EMAILS="ops@example.com"
//
// # Observability settings
//
//	CHARTPAY_LOG_LEVEL="info"
//	CHARTPAY_METRICS_ENABLED="true"
//	CHARTPAY_OTEL_ENABLED="false"
//	CHARTPAY_OTEL_ENDPOINT="localhost:4317"
package config
