package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSSMClient implements SSMClient for testing. Parameters listed in
// existing are reported as present.
type mockSSMClient struct {
	existing map[string]bool
	getErr   error
	putErr   error
	getCalls []*ssm.GetParameterInput
	putCalls []*ssm.PutParameterInput
}

func (m *mockSSMClient) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.getCalls = append(m.getCalls, params)
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.existing[aws.ToString(params.Name)] {
		return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: params.Name}}, nil
	}
	return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
}

func (m *mockSSMClient) PutParameter(_ context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	m.putCalls = append(m.putCalls, params)
	if m.putErr != nil {
		return nil, m.putErr
	}
	return &ssm.PutParameterOutput{Version: 1}, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := values[k]
		return v, ok
	}
}

func validValues() map[string]string {
	return map[string]string{
		"DATABASE_URL":          "postgres://app:pw@db.internal:5432/petcare",
		"STRIPE_SECRET_KEY":     "sk_test_123",
		"STRIPE_WEBHOOK_SECRET": "whsec_abc",
		"SENTRY_DSN":            "https://key@o1.ingest.sentry.io/2",
	}
}

func newRunner(mock *mockSSMClient, values map[string]string) (*Runner, *bytes.Buffer) {
	var out bytes.Buffer
	return &Runner{
		SSM:    NewSSMManager(mock, "dev", discard()),
		Lookup: lookupFrom(values),
		Out:    &out,
	}, &out
}

func TestSSMPath(t *testing.T) {
	m := NewSSMManager(&mockSSMClient{}, "prod", discard())
	assert.Equal(t, "/prod/petcare/billing/stripe_secret_key", m.SSMPath("billing/stripe_secret_key"))
}

func TestInventory_CoversRequiredSecrets(t *testing.T) {
	required := map[string]bool{}
	for _, p := range Inventory() {
		if p.Required {
			required[p.EnvVar] = true
		}
	}
	assert.Equal(t, map[string]bool{
		"DATABASE_URL":          true,
		"STRIPE_SECRET_KEY":     true,
		"STRIPE_WEBHOOK_SECRET": true,
	}, required)
}

func TestRun_WritesNewParameters(t *testing.T) {
	mock := &mockSSMClient{}
	r, out := newRunner(mock, validValues())

	results, err := r.Run(context.Background(), Inventory())
	require.NoError(t, err)

	assert.Equal(t, OutcomeWritten, results["STRIPE_WEBHOOK_SECRET"])
	assert.Equal(t, OutcomeSkipped, results["REDIS_URL"])
	require.Len(t, mock.putCalls, 4)
	for _, call := range mock.putCalls {
		assert.Equal(t, ssmtypes.ParameterTypeSecureString, call.Type)
		assert.True(t, strings.HasPrefix(aws.ToString(call.Name), "/dev/petcare/"))
	}

	r.WritePointers(Inventory(), results)
	assert.Contains(t, out.String(), "STRIPE_SECRET_KEY_SSM_PARAM=/dev/petcare/billing/stripe_secret_key\n")
	assert.NotContains(t, out.String(), "REDIS_URL_SSM_PARAM")
}

func TestRun_ExistingParametersKept(t *testing.T) {
	mock := &mockSSMClient{existing: map[string]bool{"/dev/petcare/database/url": true}}
	r, _ := newRunner(mock, validValues())

	results, err := r.Run(context.Background(), Inventory())
	require.NoError(t, err)

	assert.Equal(t, OutcomeExists, results["DATABASE_URL"])
	for _, call := range mock.putCalls {
		assert.NotEqual(t, "/dev/petcare/database/url", aws.ToString(call.Name))
	}
}

func TestRun_OverwriteSkipsExistenceCheck(t *testing.T) {
	mock := &mockSSMClient{existing: map[string]bool{"/dev/petcare/database/url": true}}
	r, _ := newRunner(mock, validValues())
	r.Overwrite = true

	results, err := r.Run(context.Background(), Inventory())
	require.NoError(t, err)

	assert.Equal(t, OutcomeWritten, results["DATABASE_URL"])
	assert.Empty(t, mock.getCalls)
	assert.True(t, aws.ToBool(mock.putCalls[0].Overwrite))
}

func TestRun_ValidationFailsBeforeAnyWrite(t *testing.T) {
	values := validValues()
	values["STRIPE_WEBHOOK_SECRET"] = "not-a-secret"
	delete(values, "DATABASE_URL")
	mock := &mockSSMClient{}
	r, _ := newRunner(mock, values)

	_, err := r.Run(context.Background(), Inventory())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL: not set")
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET: must start with one of whsec_")
	assert.Empty(t, mock.putCalls)
}

func TestRun_DryRun(t *testing.T) {
	mock := &mockSSMClient{}
	r, out := newRunner(mock, validValues())
	r.DryRun = true

	results, err := r.Run(context.Background(), Inventory())
	require.NoError(t, err)

	assert.Equal(t, OutcomeDryRun, results["DATABASE_URL"])
	assert.Empty(t, mock.putCalls)
	assert.Empty(t, mock.getCalls)

	r.WritePointers(Inventory(), results)
	assert.Contains(t, out.String(), "DATABASE_URL_SSM_PARAM=/dev/petcare/database/url")
}

func TestRun_SSMErrors(t *testing.T) {
	mock := &mockSSMClient{getErr: errors.New("AccessDenied")}
	r, _ := newRunner(mock, validValues())
	_, err := r.Run(context.Background(), Inventory())
	assert.ErrorContains(t, err, "AccessDenied")

	mock = &mockSSMClient{putErr: &ssmtypes.ParameterAlreadyExists{Message: aws.String("exists")}}
	r, _ = newRunner(mock, validValues())
	_, err = r.Run(context.Background(), Inventory())
	assert.ErrorContains(t, err, "already exists")
}

func TestPutSecret_RejectsEmpty(t *testing.T) {
	m := NewSSMManager(&mockSSMClient{}, "dev", discard())
	assert.Error(t, m.PutSecret(context.Background(), "", "v", false))
	assert.Error(t, m.PutSecret(context.Background(), "/dev/petcare/x", "", false))
}

func TestValidators(t *testing.T) {
	db := urlWithScheme("postgres", "postgresql")
	assert.NoError(t, db("postgresql://u@h/db"))
	assert.Error(t, db("mysql://u@h/db"))
	assert.Error(t, db("not a url"))

	key := hasPrefix("sk_", "rk_")
	assert.NoError(t, key("rk_live_1"))
	assert.Error(t, key("pk_live_1"))
}

func TestValueSource_Dotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.dev")
	require.NoError(t, os.WriteFile(path, []byte("STRIPE_SECRET_KEY=sk_test_file\n"), 0o600))

	lookup, err := valueSource(path)
	require.NoError(t, err)
	v, ok := lookup("STRIPE_SECRET_KEY")
	assert.True(t, ok)
	assert.Equal(t, "sk_test_file", v)

	_, err = valueSource(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

type fakeSTS struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (f fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return f.out, f.err
}

func TestVerifyIdentity(t *testing.T) {
	account, err := verifyIdentity(context.Background(), fakeSTS{out: &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:iam::123456789012:user/ops"),
	}}, discard())
	require.NoError(t, err)
	assert.Equal(t, "123456789012", account)

	_, err = verifyIdentity(context.Background(), fakeSTS{err: errors.New("expired token")}, discard())
	assert.ErrorContains(t, err, "expired token")
}

func TestConfirm(t *testing.T) {
	assert.True(t, confirm(strings.NewReader("YES\n"), io.Discard, "1", "eu-central-1"))
	assert.False(t, confirm(strings.NewReader("no\n"), io.Discard, "1", "eu-central-1"))
	assert.False(t, confirm(strings.NewReader(""), io.Discard, "1", "eu-central-1"))
}
