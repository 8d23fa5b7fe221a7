package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv loads envFile (when it exists) into the process environment and
// then overlays the variables below onto config. Variables already set in the
// environment win over the file, as godotenv never overwrites them.
//
//	HOOT_ADDR, DATABASE_URL, HOOT_SECRET_KEY, HOOT_TOKEN_TTL, ENVIRONMENT, WEBSITE,
//	HOOT_S3_DRIVER, HOOT_AWS_ACCESS_KEY_ID, HOOT_AWS_SECRET_ACCESS_KEY,
//	HOOT_S3_BUCKET_NAME, HOOT_S3_REGION, HOOT_S3_ENDPOINT,
//	HOOT_SOURCE_URL_TTL, HOOT_REMOTE_FETCH_TIMEOUT, HOOT_MAX_UPLOAD_SIZE,
//	HOOT_BASE_QUOTA, HOOT_ELEVATED_QUOTA,
//	EMAIL_USER, EMAIL_PASSWORD, EMAIL_SERVER, EMAIL_PORT, EMAIL_NAME,
//	PATREON_WEBHOOK_SECRET, PATREON_CLIENT_ID, PATREON_CLIENT_SECRET, PATREON_REDIRECT_URL,
//	HOOT_SUBSCRIPTION_SYNC_INTERVAL, HOOT_SUBSCRIPTION_MAX_AGE
func parseEnv(config *Config, envFile string, lookup func(string) (string, bool)) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	strs := map[string]*string{
		"HOOT_ADDR":                  &config.EndpointAddrHTTP,
		"DATABASE_URL":               &config.DatabaseDSN,
		"HOOT_SECRET_KEY":            &config.SecretKey,
		"ENVIRONMENT":                &config.Environment,
		"WEBSITE":                    &config.Website,
		"HOOT_S3_DRIVER":             &config.S3Driver,
		"HOOT_AWS_ACCESS_KEY_ID":     &config.S3RootUser,
		"HOOT_AWS_SECRET_ACCESS_KEY": &config.S3RootPassword,
		"HOOT_S3_BUCKET_NAME":        &config.S3Bucket,
		"HOOT_S3_REGION":             &config.S3Region,
		"HOOT_S3_ENDPOINT":           &config.S3BaseEndpoint,
		"EMAIL_USER":                 &config.SMTPUser,
		"EMAIL_PASSWORD":             &config.SMTPPassword,
		"EMAIL_SERVER":               &config.SMTPServer,
		"EMAIL_NAME":                 &config.SMTPName,
		"PATREON_WEBHOOK_SECRET":     &config.PatreonWebhookSecret,
		"PATREON_CLIENT_ID":          &config.PatreonClientID,
		"PATREON_CLIENT_SECRET":      &config.PatreonClientSecret,
		"PATREON_REDIRECT_URL":       &config.PatreonRedirectURL,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"HOOT_TOKEN_TTL":                  &config.AccessTokenValidityDuration,
		"HOOT_SOURCE_URL_TTL":             &config.SourceURLTTL,
		"HOOT_REMOTE_FETCH_TIMEOUT":       &config.RemoteFetchTimeout,
		"HOOT_SUBSCRIPTION_SYNC_INTERVAL": &config.SubscriptionSyncInterval,
		"HOOT_SUBSCRIPTION_MAX_AGE":       &config.SubscriptionMaxAge,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	sizes := map[string]*int64{
		"HOOT_MAX_UPLOAD_SIZE": &config.MaxUploadSize,
		"HOOT_BASE_QUOTA":      &config.BaseQuota,
		"HOOT_ELEVATED_QUOTA":  &config.ElevatedQuota,
	}
	for key, dst := range sizes {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := lookup("EMAIL_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EMAIL_PORT: %w", err)
		}
		config.SMTPPort = port
	}

	return nil
}
