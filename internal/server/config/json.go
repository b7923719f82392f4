package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/chatgate/internal/flagx"
	"github.com/dmitrijs2005/chatgate/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "10s" and integer nanoseconds are accepted.
// Pointer fields distinguish "absent" from zero values.
type JsonConfig struct {
	EndpointAddrHTTP      *string         `json:"endpoint_addr_http"`
	DatabaseDSN           *string         `json:"database_dsn"`
	SecretKey             *string         `json:"secret_key"`
	TokenValidityDuration *timex.Duration `json:"token_validity_duration"`
	Sandbox               *bool           `json:"sandbox"`
	GPTModel              *string         `json:"gpt_model"`
	GPTMaxTokens          *int            `json:"gpt_max_tokens"`
	GPTTemperature        *float64        `json:"gpt_temperature"`
	GPTBaseURL            *string         `json:"gpt_base_url"`
	GPTOrganization       *string         `json:"gpt_organization"`
	UpstreamTimeout       *timex.Duration `json:"upstream_timeout"`
	SharedAPIKey          *string         `json:"shared_api_key"`
	AdminIdentifier       *string         `json:"admin_identifier"`
	AdminEmail            *string         `json:"admin_email"`
	AdminPassword         *string         `json:"admin_password"`
	CredentialLeaseTTL    *timex.Duration `json:"credential_lease_ttl"`
	MaxRecordsPageSize    *int            `json:"max_records_page_size"`
	LogLevel              *string         `json:"log_level"`
	LogFormat             *string         `json:"log_format"`
}

// parseJson overlays the file named by -c/-config onto config. Keys that
// are absent from the file leave the current values untouched. An unreadable
// file or invalid JSON panics, since the server cannot start half-configured.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.TokenValidityDuration != nil {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	if c.Sandbox != nil {
		config.Sandbox = *c.Sandbox
	}
	setString(&config.GPTModel, c.GPTModel)
	if c.GPTMaxTokens != nil {
		config.GPTMaxTokens = *c.GPTMaxTokens
	}
	if c.GPTTemperature != nil {
		config.GPTTemperature = *c.GPTTemperature
	}
	setString(&config.GPTBaseURL, c.GPTBaseURL)
	setString(&config.GPTOrganization, c.GPTOrganization)
	if c.UpstreamTimeout != nil {
		config.UpstreamTimeout = c.UpstreamTimeout.Duration
	}
	setString(&config.SharedAPIKey, c.SharedAPIKey)
	setString(&config.AdminIdentifier, c.AdminIdentifier)
	setString(&config.AdminEmail, c.AdminEmail)
	setString(&config.AdminPassword, c.AdminPassword)
	if c.CredentialLeaseTTL != nil {
		config.CredentialLeaseTTL = c.CredentialLeaseTTL.Duration
	}
	if c.MaxRecordsPageSize != nil {
		config.MaxRecordsPageSize = *c.MaxRecordsPageSize
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
