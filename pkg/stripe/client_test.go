package stripe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gearledger-backend/pkg/config"
)

func TestNewClientChecksKeyAgainstEnvironment(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
		live    bool
	}{
		{"test key", config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec_1", Env: "test"}, false, false},
		{"restricted live key", config.StripeConfig{APIKey: "rk_live_abc", Secret: "whsec_1", Env: "LIVE"}, false, true},
		{"live key in test", config.StripeConfig{APIKey: "sk_live_abc", Secret: "whsec_1", Env: "test"}, true, false},
		{"publishable key", config.StripeConfig{APIKey: "pk_test_abc", Secret: "whsec_1", Env: "test"}, true, false},
		{"missing secret", config.StripeConfig{APIKey: "sk_test_abc", Env: "test"}, true, false},
		{"unknown env", config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec_1", Env: "staging"}, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, nil)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "whsec_1", client.SigningSecret())
			assert.Equal(t, tc.live, client.Livemode())
		})
	}
}

func TestNilClientIsInert(t *testing.T) {
	var client *Client
	assert.Empty(t, client.SigningSecret())
	assert.False(t, client.Livemode())
}
