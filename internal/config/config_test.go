package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	valid := Options{
		ServerAddr:      "localhost:8080",
		DatabaseDSN:     "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable",
		SigningKey:      "c29tZV9zZWNyZXQ=",
		AllowedOrigins:  []string{"http://localhost:3000"},
		CleanupInterval: time.Minute,
		RateLimit:       10,
		RateBurst:       20,
	}

	tcases := []struct {
		name   string
		modify func(o *Options)
		err    bool
	}{
		{
			name:   "valid config",
			modify: func(o *Options) {},
		},
		{
			name:   "empty address",
			modify: func(o *Options) { o.ServerAddr = "" },
			err:    true,
		},
		{
			name:   "empty DSN",
			modify: func(o *Options) { o.DatabaseDSN = "" },
			err:    true,
		},
		{
			name:   "empty signing key disables cleanup auth",
			modify: func(o *Options) { o.SigningKey = "" },
		},
		{
			name:   "invalid signing key",
			modify: func(o *Options) { o.SigningKey = "invalid_base64" },
			err:    true,
		},
		{
			name:   "negative cleanup interval",
			modify: func(o *Options) { o.CleanupInterval = -time.Second },
			err:    true,
		},
		{
			name:   "zero rate limit",
			modify: func(o *Options) { o.RateLimit = 0 },
			err:    true,
		},
		{
			name:   "zero burst",
			modify: func(o *Options) { o.RateBurst = 0 },
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			opts := valid
			tc.modify(&opts)

			config, err := NewConfig(opts)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, opts.ServerAddr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, opts.DatabaseDSN, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, opts.AllowedOrigins, config.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, opts.CleanupInterval, config.CleanupInterval)
			if opts.SigningKey == "" {
				assert.Empty(t, config.SigningKey)
			} else {
				assert.Equal(t, []byte("some_secret"), config.SigningKey)
			}
		})
	}
}

func TestUseMemoryStore(t *testing.T) {
	cfg := &Config{DatabaseDSN: MemoryDSN}
	assert.True(t, cfg.UseMemoryStore())

	cfg.DatabaseDSN = "postgres://localhost/echo"
	assert.False(t, cfg.UseMemoryStore())
}

func Test_decodeSigningKey(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
		{
			name:         "empty base64 secret",
			base64Secret: "",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := DecodeSigningKey(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key, "expected decoded key to match for base64 secret: %s", tc.base64Secret)
			}
		})
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("ECHO_TEST_ADDR", "0.0.0.0:9000")
	t.Setenv("ECHO_TEST_INTERVAL", "30s")
	t.Setenv("ECHO_TEST_BAD_INTERVAL", "soon")
	t.Setenv("ECHO_TEST_RATE", "2.5")

	assert.Equal(t, "0.0.0.0:9000", Getenv("ECHO_TEST_ADDR", "fallback"))
	assert.Equal(t, "fallback", Getenv("ECHO_TEST_UNSET", "fallback"))
	assert.Equal(t, 30*time.Second, GetenvDuration("ECHO_TEST_INTERVAL", time.Minute))
	assert.Equal(t, time.Minute, GetenvDuration("ECHO_TEST_BAD_INTERVAL", time.Minute))
	assert.Equal(t, 2.5, GetenvFloat("ECHO_TEST_RATE", 10))
}
