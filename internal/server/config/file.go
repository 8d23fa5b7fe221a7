package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/dmitrijs2005/hoot/internal/timex"
)

// FileConfig is the on-disk shape of the configuration, shared by the JSON
// and TOML loaders. Durations accept "90s" strings (and integer nanoseconds
// in JSON). Keys absent from the file leave the current value untouched.
type FileConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http" toml:"endpoint_addr_http"`
	DatabaseDSN                 string         `json:"database_dsn" toml:"database_dsn"`
	SecretKey                   string         `json:"secret_key" toml:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration" toml:"access_token_validity_duration"`
	Environment                 string         `json:"environment" toml:"environment"`
	Website                     string         `json:"website" toml:"website"`

	S3Driver       string `json:"s3_driver" toml:"s3_driver"`
	S3RootUser     string `json:"s3_root_user" toml:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password" toml:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket" toml:"s3_bucket"`
	S3Region       string `json:"s3_region" toml:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint" toml:"s3_base_endpoint"`

	SourceURLTTL       timex.Duration `json:"source_url_ttl" toml:"source_url_ttl"`
	RemoteFetchTimeout timex.Duration `json:"remote_fetch_timeout" toml:"remote_fetch_timeout"`
	MaxUploadSize      int64          `json:"max_upload_size" toml:"max_upload_size"`
	BaseQuota          int64          `json:"base_quota" toml:"base_quota"`
	ElevatedQuota      int64          `json:"elevated_quota" toml:"elevated_quota"`

	SMTPUser     string `json:"smtp_user" toml:"smtp_user"`
	SMTPPassword string `json:"smtp_password" toml:"smtp_password"`
	SMTPServer   string `json:"smtp_server" toml:"smtp_server"`
	SMTPPort     int    `json:"smtp_port" toml:"smtp_port"`
	SMTPName     string `json:"smtp_name" toml:"smtp_name"`

	PatreonWebhookSecret     string         `json:"patreon_webhook_secret" toml:"patreon_webhook_secret"`
	PatreonClientID          string         `json:"patreon_client_id" toml:"patreon_client_id"`
	PatreonClientSecret      string         `json:"patreon_client_secret" toml:"patreon_client_secret"`
	PatreonRedirectURL       string         `json:"patreon_redirect_url" toml:"patreon_redirect_url"`
	SubscriptionSyncInterval timex.Duration `json:"subscription_sync_interval" toml:"subscription_sync_interval"`
	SubscriptionMaxAge       timex.Duration `json:"subscription_max_age" toml:"subscription_max_age"`
}

func newFileConfig(c *Config) *FileConfig {
	return &FileConfig{
		EndpointAddrHTTP:            c.EndpointAddrHTTP,
		DatabaseDSN:                 c.DatabaseDSN,
		SecretKey:                   c.SecretKey,
		AccessTokenValidityDuration: timex.Duration{Duration: c.AccessTokenValidityDuration},
		Environment:                 c.Environment,
		Website:                     c.Website,
		S3Driver:                    c.S3Driver,
		S3RootUser:                  c.S3RootUser,
		S3RootPassword:              c.S3RootPassword,
		S3Bucket:                    c.S3Bucket,
		S3Region:                    c.S3Region,
		S3BaseEndpoint:              c.S3BaseEndpoint,
		SourceURLTTL:                timex.Duration{Duration: c.SourceURLTTL},
		RemoteFetchTimeout:          timex.Duration{Duration: c.RemoteFetchTimeout},
		MaxUploadSize:               c.MaxUploadSize,
		BaseQuota:                   c.BaseQuota,
		ElevatedQuota:               c.ElevatedQuota,
		SMTPUser:                    c.SMTPUser,
		SMTPPassword:                c.SMTPPassword,
		SMTPServer:                  c.SMTPServer,
		SMTPPort:                    c.SMTPPort,
		SMTPName:                    c.SMTPName,
		PatreonWebhookSecret:        c.PatreonWebhookSecret,
		PatreonClientID:             c.PatreonClientID,
		PatreonClientSecret:         c.PatreonClientSecret,
		PatreonRedirectURL:          c.PatreonRedirectURL,
		SubscriptionSyncInterval:    timex.Duration{Duration: c.SubscriptionSyncInterval},
		SubscriptionMaxAge:          timex.Duration{Duration: c.SubscriptionMaxAge},
	}
}

func (f *FileConfig) apply(c *Config) {
	c.EndpointAddrHTTP = f.EndpointAddrHTTP
	c.DatabaseDSN = f.DatabaseDSN
	c.SecretKey = f.SecretKey
	c.AccessTokenValidityDuration = f.AccessTokenValidityDuration.Duration
	c.Environment = f.Environment
	c.Website = f.Website
	c.S3Driver = f.S3Driver
	c.S3RootUser = f.S3RootUser
	c.S3RootPassword = f.S3RootPassword
	c.S3Bucket = f.S3Bucket
	c.S3Region = f.S3Region
	c.S3BaseEndpoint = f.S3BaseEndpoint
	c.SourceURLTTL = f.SourceURLTTL.Duration
	c.RemoteFetchTimeout = f.RemoteFetchTimeout.Duration
	c.MaxUploadSize = f.MaxUploadSize
	c.BaseQuota = f.BaseQuota
	c.ElevatedQuota = f.ElevatedQuota
	c.SMTPUser = f.SMTPUser
	c.SMTPPassword = f.SMTPPassword
	c.SMTPServer = f.SMTPServer
	c.SMTPPort = f.SMTPPort
	c.SMTPName = f.SMTPName
	c.PatreonWebhookSecret = f.PatreonWebhookSecret
	c.PatreonClientID = f.PatreonClientID
	c.PatreonClientSecret = f.PatreonClientSecret
	c.PatreonRedirectURL = f.PatreonRedirectURL
	c.SubscriptionSyncInterval = f.SubscriptionSyncInterval.Duration
	c.SubscriptionMaxAge = f.SubscriptionMaxAge.Duration
}

// parseFile overlays the JSON or TOML file at path onto config. The format is
// picked by extension: ".toml" is TOML, anything else JSON. An empty path is
// a no-op.
func parseFile(config *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	fc := newFileConfig(config)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), fc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}
