package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSTS struct {
	input  *sts.AssumeRoleInput
	opts   sts.Options
	output *sts.AssumeRoleOutput
	err    error
}

func (m *mockSTS) AssumeRole(
	_ context.Context,
	params *sts.AssumeRoleInput,
	optFns ...func(*sts.Options),
) (*sts.AssumeRoleOutput, error) {
	m.input = params
	for _, fn := range optFns {
		fn(&m.opts)
	}
	return m.output, m.err
}

func TestDefaultSessionName(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_760_000_000_123)
	assert.Equal(t, "assume-role-provider-1760000000123", DefaultSessionName(DefaultSessionNameBase, now))
}

func TestAssumeRoleResolver(t *testing.T) {
	t.Parallel()

	exp := time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC)
	clk := fakeclock.NewFakeClock(time.UnixMilli(1_760_000_000_000))
	mock := &mockSTS{output: &sts.AssumeRoleOutput{Credentials: &ststypes.Credentials{
		AccessKeyId:     aws.String("ASIAROLE"),
		SecretAccessKey: aws.String("role-secret"),
		SessionToken:    aws.String("role-token"),
		Expiration:      aws.Time(exp),
	}}}
	source := NewStaticCredentialsResolver("AKIDBOOT", "boot-secret", "")

	r, err := NewAssumeRoleResolver(mock, source, AssumeRoleOptions{
		RoleARN:    "arn:aws:iam::123456789012:role/demo",
		ExternalID: "ext-1",
		Duration:   30 * time.Minute,
		Policy:     `{"Version":"2012-10-17"}`,
	}, WithAssumeRoleClock(clk))
	require.NoError(t, err)

	id, err := r.ResolveIdentity(context.Background())
	require.NoError(t, err)

	creds, ok := id.Credentials()
	require.True(t, ok)
	assert.Equal(t, "ASIAROLE", creds.AccessKeyID)
	assert.Equal(t, "role-token", creds.SessionToken)
	got, _ := id.Expiration()
	assert.Equal(t, exp, got)
	assert.Equal(t, "AssumeRoleProvider", id.ProviderName())

	require.NotNil(t, mock.input)
	assert.Equal(t, "assume-role-provider-1760000000000", aws.ToString(mock.input.RoleSessionName))
	assert.Equal(t, "ext-1", aws.ToString(mock.input.ExternalId))
	assert.Equal(t, int32(1800), aws.ToInt32(mock.input.DurationSeconds))
	assert.NotNil(t, mock.input.Policy)

	require.NotNil(t, mock.opts.Credentials)
	bootstrap, err := mock.opts.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDBOOT", bootstrap.AccessKeyID)
	assert.Equal(t, "Static", bootstrap.Source)
}

func TestAssumeRoleResolver_ExplicitSessionName(t *testing.T) {
	t.Parallel()

	mock := &mockSTS{output: &sts.AssumeRoleOutput{Credentials: &ststypes.Credentials{
		AccessKeyId: aws.String("A"), SecretAccessKey: aws.String("B"),
	}}}
	r, err := NewAssumeRoleResolver(mock, NoIdentityResolver{}, AssumeRoleOptions{
		RoleARN: "arn:aws:iam::1:role/x", RoleSessionName: "my-session",
	})
	require.NoError(t, err)

	_, err = r.ResolveIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "my-session", aws.ToString(mock.input.RoleSessionName))
	assert.Nil(t, mock.input.DurationSeconds)
	assert.Nil(t, mock.input.ExternalId)
}

func TestAssumeRoleResolver_Errors(t *testing.T) {
	t.Parallel()

	cause := errors.New("AccessDenied")
	failing, err := NewAssumeRoleResolver(&mockSTS{err: cause}, NoIdentityResolver{},
		AssumeRoleOptions{RoleARN: "arn:aws:iam::1:role/x"})
	require.NoError(t, err)
	_, err = failing.ResolveIdentity(context.Background())
	assert.ErrorIs(t, err, ErrIdentityUnavailable)
	assert.ErrorIs(t, err, cause)

	empty, err := NewAssumeRoleResolver(&mockSTS{output: &sts.AssumeRoleOutput{}}, NoIdentityResolver{},
		AssumeRoleOptions{RoleARN: "arn:aws:iam::1:role/x"})
	require.NoError(t, err)
	_, err = empty.ResolveIdentity(context.Background())
	assert.ErrorIs(t, err, ErrIdentityUnavailable)

	_, err = NewAssumeRoleResolver(&mockSTS{}, NoIdentityResolver{}, AssumeRoleOptions{})
	assert.ErrorIs(t, err, ErrIdentityUnavailable)
	_, err = NewAssumeRoleResolver(nil, NoIdentityResolver{}, AssumeRoleOptions{RoleARN: "x"})
	assert.Error(t, err)
}

func TestCredentialsProvider_NonCredentialIdentity(t *testing.T) {
	t.Parallel()

	p := CredentialsProvider(NoIdentityResolver{})
	_, err := p.Retrieve(context.Background())
	assert.ErrorIs(t, err, ErrIdentityUnavailable)
}

const assumeRoleResponse = `<AssumeRoleResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <AssumeRoleResult>
    <Credentials>
      <AccessKeyId>ASIAHTTP</AccessKeyId>
      <SecretAccessKey>http-secret</SecretAccessKey>
      <SessionToken>http-token</SessionToken>
      <Expiration>2026-10-15T13:00:00Z</Expiration>
    </Credentials>
    <AssumedRoleUser>
      <Arn>arn:aws:sts::123456789012:assumed-role/demo/session</Arn>
      <AssumedRoleId>AROA123:session</AssumedRoleId>
    </AssumedRoleUser>
  </AssumeRoleResult>
  <ResponseMetadata>
    <RequestId>c6104cbe-af31-11e0-8154-cbc7ccf896c7</RequestId>
  </ResponseMetadata>
</AssumeRoleResponse>`

func TestAssumeRoleResolver_STSWire(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "AssumeRole", r.PostForm.Get("Action"))
		assert.True(t, strings.HasPrefix(r.PostForm.Get("RoleSessionName"), DefaultSessionNameBase+"-"))
		assert.Contains(t, r.Header.Get("Authorization"), "Credential=AKIDBOOT/")

		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(assumeRoleResponse))
	}))
	defer server.Close()

	client := sts.New(sts.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(server.URL),
		RetryMaxAttempts: 1,
	})
	source := NewStaticCredentialsResolver("AKIDBOOT", "boot-secret", "")

	r, err := NewAssumeRoleResolver(client, source, AssumeRoleOptions{
		RoleARN: "arn:aws:iam::123456789012:role/demo",
	})
	require.NoError(t, err)

	id, err := r.ResolveIdentity(context.Background())
	require.NoError(t, err)

	creds, _ := id.Credentials()
	assert.Equal(t, "ASIAHTTP", creds.AccessKeyID)
	assert.Equal(t, "http-token", creds.SessionToken)
	exp, _ := id.Expiration()
	assert.Equal(t, time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC), exp.UTC())
}
