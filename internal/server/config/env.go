package config

import (
	"github.com/spf13/viper"
)

// envPrefix namespaces the environment variables, e.g. CHATGATE_DATABASE_DSN.
const envPrefix = "CHATGATE"

// parseEnv overlays CHATGATE_* environment variables onto config. Only
// variables that are actually set are applied.
func parseEnv(config *Config) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)

	keys := []string{
		"endpoint_addr_http", "database_dsn", "secret_key", "token_validity_duration",
		"sandbox", "gpt_model", "gpt_max_tokens", "gpt_temperature", "gpt_base_url",
		"gpt_organization", "upstream_timeout", "shared_api_key", "admin_identifier",
		"admin_email", "admin_password", "credential_lease_ttl", "max_records_page_size",
		"log_level", "log_format",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	if v.IsSet("endpoint_addr_http") {
		config.EndpointAddrHTTP = v.GetString("endpoint_addr_http")
	}
	if v.IsSet("database_dsn") {
		config.DatabaseDSN = v.GetString("database_dsn")
	}
	if v.IsSet("secret_key") {
		config.SecretKey = v.GetString("secret_key")
	}
	if v.IsSet("token_validity_duration") {
		config.TokenValidityDuration = v.GetDuration("token_validity_duration")
	}
	if v.IsSet("sandbox") {
		config.Sandbox = v.GetBool("sandbox")
	}
	if v.IsSet("gpt_model") {
		config.GPTModel = v.GetString("gpt_model")
	}
	if v.IsSet("gpt_max_tokens") {
		config.GPTMaxTokens = v.GetInt("gpt_max_tokens")
	}
	if v.IsSet("gpt_temperature") {
		config.GPTTemperature = v.GetFloat64("gpt_temperature")
	}
	if v.IsSet("gpt_base_url") {
		config.GPTBaseURL = v.GetString("gpt_base_url")
	}
	if v.IsSet("gpt_organization") {
		config.GPTOrganization = v.GetString("gpt_organization")
	}
	if v.IsSet("upstream_timeout") {
		config.UpstreamTimeout = v.GetDuration("upstream_timeout")
	}
	if v.IsSet("shared_api_key") {
		config.SharedAPIKey = v.GetString("shared_api_key")
	}
	if v.IsSet("admin_identifier") {
		config.AdminIdentifier = v.GetString("admin_identifier")
	}
	if v.IsSet("admin_email") {
		config.AdminEmail = v.GetString("admin_email")
	}
	if v.IsSet("admin_password") {
		config.AdminPassword = v.GetString("admin_password")
	}
	if v.IsSet("credential_lease_ttl") {
		config.CredentialLeaseTTL = v.GetDuration("credential_lease_ttl")
	}
	if v.IsSet("max_records_page_size") {
		config.MaxRecordsPageSize = v.GetInt("max_records_page_size")
	}
	if v.IsSet("log_level") {
		config.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("log_format") {
		config.LogFormat = v.GetString("log_format")
	}
}
