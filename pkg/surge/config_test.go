package surge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateAcceptsDefaults(t *testing.T) {
	c := DefaultConfig()
	c.Address = "127.0.0.1"
	c.Port = 8080

	require.NoError(t, c.Validate())
	assert.Equal(t, c.PingInterval, c.RequestTimeout)
}

func TestConfig_ValidateRejectsMissingAddress(t *testing.T) {
	c := DefaultConfig()
	c.Port = 8080

	err := c.Validate()
	require.Error(t, err)

	var surgeErr *Error
	require.ErrorAs(t, err, &surgeErr)
	assert.Equal(t, KindInternal, surgeErr.Kind)
}

func TestConfig_ValidateRejectsBadPort(t *testing.T) {
	c := DefaultConfig()
	c.Address = "127.0.0.1"
	c.Port = 0

	require.Error(t, c.Validate())
}

func TestConfig_RequestTimeoutNotOverriddenWhenSet(t *testing.T) {
	c := DefaultConfig()
	c.Address = "127.0.0.1"
	c.Port = 8080
	c.RequestTimeout = 5 * time.Second

	require.NoError(t, c.Validate())
	assert.Equal(t, 5*time.Second, c.RequestTimeout)
}
