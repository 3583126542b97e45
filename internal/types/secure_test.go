package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_super-secret-signing-key"

func TestSecretString_FormattingRedacts(t *testing.T) {
	s := SecretString(testSecret)

	for _, verb := range []string{"%s", "%v", "%+v"} {
		out := fmt.Sprintf(verb, s)
		assert.NotContains(t, out, testSecret, "verb %s leaked the secret", verb)
		assert.Equal(t, redactedPlaceholder, out)
	}
}

func TestSecretString_MarshalJSONInStruct(t *testing.T) {
	cfg := struct {
		WebhookSecret SecretString `json:"webhook_secret"`
		Name          string       `json:"name"`
	}{WebhookSecret: SecretString(testSecret), Name: "billing"}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	assert.False(t, strings.Contains(string(data), testSecret))
	assert.Contains(t, string(data), redactedPlaceholder)
}

func TestSecretString_Unmask(t *testing.T) {
	assert.Equal(t, testSecret, SecretString(testSecret).Unmask())
	assert.True(t, SecretString("").IsZero())
	assert.False(t, SecretString(testSecret).IsZero())
}
