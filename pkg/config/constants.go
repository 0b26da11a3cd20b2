package config

const (
	EnvPrefix = "TAKAS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv = "TAKAS_APP_ENV"
	EnvPort   = "TAKAS_APP_PORT"

	EnvDBDSN  = "TAKAS_DB_DSN"
	EnvDBHost = "TAKAS_DB_HOST"
	EnvDBUser = "TAKAS_DB_USER"
	EnvDBName = "TAKAS_DB_NAME"

	EnvRedisURL = "TAKAS_REDIS_URL"

	EnvJWTSecret  = "TAKAS_JWT_SECRET"
	EnvJWTIssuer  = "TAKAS_JWT_ISSUER"
	EnvJWTExpMins = "TAKAS_JWT_EXPIRATION_MINUTES"

	EnvSwapsOfferTTL       = "TAKAS_SWAPS_OFFER_TTL"
	EnvSwapsReminderAfter  = "TAKAS_SWAPS_REMINDER_AFTER"
	EnvSwapsReminderBefore = "TAKAS_SWAPS_REMINDER_BEFORE"
	EnvFeeBrackets         = "TAKAS_FEES_BRACKETS"

	EnvGCPProjectID = "TAKAS_GCP_PROJECT_ID"

	EnvPubSubNotificationTopic = "TAKAS_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubNotificationSub   = "TAKAS_PUBSUB_NOTIFICATION_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
