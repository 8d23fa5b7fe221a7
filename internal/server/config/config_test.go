package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/hoot/internal/common"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.EndpointAddrHTTP)
	assert.Equal(t, common.EnvProduction, c.Environment)
	assert.True(t, c.IsProduction())
	assert.Equal(t, DriverS3, c.S3Driver)
	assert.Equal(t, "eu-west-3", c.S3Region)
	assert.Equal(t, time.Hour, c.SourceURLTTL)
	assert.Equal(t, time.Minute, c.RemoteFetchTimeout)
	assert.Equal(t, int64(1<<30), c.MaxUploadSize)
	assert.Equal(t, int64(2147483648), c.BaseQuota)
	assert.Equal(t, int64(10737418240), c.ElevatedQuota)
	assert.Equal(t, 587, c.SMTPPort)
	assert.Equal(t, 24*time.Hour, c.SubscriptionMaxAge)
}

func TestLoadConfig_FlagsOverrideDefaults(t *testing.T) {
	c, err := LoadConfig([]string{"-a", "127.0.0.1:9999", "-env", common.EnvDevelopment, "-t", "30"})
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, "127.0.0.1:9999", c.EndpointAddrHTTP)
	assert.Equal(t, common.EnvDevelopment, c.Environment)
	assert.False(t, c.IsProduction())
	assert.Equal(t, 30*time.Minute, c.AccessTokenValidityDuration)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig([]string{"-c", "/does/not/exist.json"})
	require.Error(t, err)
}
