package identity

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/vyrodovalexey/avasdk/internal/observability"
)

const (
	assumeRoleProvider = "AssumeRoleProvider"

	// DefaultSessionNameBase prefixes generated role session names.
	DefaultSessionNameBase = "assume-role-provider"
)

// AssumeRoleAPI is the subset of the STS client used to assume a role.
type AssumeRoleAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// AssumeRoleOptions describes the role to assume.
type AssumeRoleOptions struct {
	RoleARN         string
	RoleSessionName string
	ExternalID      string
	Duration        time.Duration
	Policy          string
}

// AssumeRoleResolver exchanges a bootstrap identity for temporary role
// credentials.
type AssumeRoleResolver struct {
	client AssumeRoleAPI
	source Resolver
	opts   AssumeRoleOptions
	clock  clock.Clock
	logger observability.Logger
}

// AssumeRoleOption configures an AssumeRoleResolver.
type AssumeRoleOption func(*AssumeRoleResolver)

// WithAssumeRoleClock sets the clock used for session names.
func WithAssumeRoleClock(c clock.Clock) AssumeRoleOption {
	return func(r *AssumeRoleResolver) {
		r.clock = c
	}
}

// WithAssumeRoleLogger sets the logger.
func WithAssumeRoleLogger(l observability.Logger) AssumeRoleOption {
	return func(r *AssumeRoleResolver) {
		r.logger = l
	}
}

// NewAssumeRoleResolver creates a delegated resolver. source supplies the
// identity used to sign the STS call.
func NewAssumeRoleResolver(
	client AssumeRoleAPI,
	source Resolver,
	opts AssumeRoleOptions,
	options ...AssumeRoleOption,
) (*AssumeRoleResolver, error) {
	if client == nil || source == nil {
		return nil, unavailable(assumeRoleProvider, "configure", "sts client and source resolver are required", nil)
	}
	if opts.RoleARN == "" {
		return nil, unavailable(assumeRoleProvider, "configure", "role ARN is required", nil)
	}

	r := &AssumeRoleResolver{
		client: client,
		source: source,
		opts:   opts,
		clock:  clock.NewClock(),
		logger: observability.NopLogger(),
	}
	for _, o := range options {
		o(r)
	}
	return r, nil
}

// NewSTSAssumeRoleResolver builds the STS client for region and returns
// a resolver using it.
func NewSTSAssumeRoleResolver(
	region string,
	source Resolver,
	opts AssumeRoleOptions,
	options ...AssumeRoleOption,
) (*AssumeRoleResolver, error) {
	client := sts.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: aws.NewCredentialsCache(CredentialsProvider(source)),
	})
	return NewAssumeRoleResolver(client, source, opts, options...)
}

// DefaultSessionName composes a session name from base and a millisecond
// timestamp so concurrent sessions do not collide.
func DefaultSessionName(base string, now time.Time) string {
	return fmt.Sprintf("%s-%d", base, now.UnixMilli())
}

// ResolveIdentity implements Resolver.
func (r *AssumeRoleResolver) ResolveIdentity(ctx context.Context) (*Identity, error) {
	sessionName := r.opts.RoleSessionName
	if sessionName == "" {
		sessionName = DefaultSessionName(DefaultSessionNameBase, r.clock.Now())
	}

	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(r.opts.RoleARN),
		RoleSessionName: aws.String(sessionName),
	}
	if r.opts.ExternalID != "" {
		input.ExternalId = aws.String(r.opts.ExternalID)
	}
	if r.opts.Duration > 0 {
		input.DurationSeconds = aws.Int32(int32(r.opts.Duration / time.Second))
	}
	if r.opts.Policy != "" {
		input.Policy = aws.String(r.opts.Policy)
	}

	out, err := r.client.AssumeRole(ctx, input, func(o *sts.Options) {
		o.Credentials = CredentialsProvider(r.source)
	})
	if err != nil {
		r.logger.Warn("assume role failed",
			observability.String("role_arn", r.opts.RoleARN),
			observability.Error(err),
		)
		return nil, unavailable(assumeRoleProvider, "assume role "+r.opts.RoleARN, "", err)
	}
	if out == nil || out.Credentials == nil {
		return nil, unavailable(assumeRoleProvider, "assume role "+r.opts.RoleARN, "response has no credentials", nil)
	}

	c := out.Credentials
	r.logger.Debug("assumed role",
		observability.String("role_arn", r.opts.RoleARN),
		observability.String("session_name", sessionName),
		observability.Time("expiration", aws.ToTime(c.Expiration)),
	)

	return NewCredentials(Credentials{
		AccessKeyID:     aws.ToString(c.AccessKeyId),
		SecretAccessKey: aws.ToString(c.SecretAccessKey),
		SessionToken:    aws.ToString(c.SessionToken),
	}, aws.ToTime(c.Expiration), assumeRoleProvider), nil
}

// CredentialsProvider adapts a Resolver to aws.CredentialsProvider.
func CredentialsProvider(r Resolver) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		id, err := r.ResolveIdentity(ctx)
		if err != nil {
			return aws.Credentials{}, err
		}
		c, ok := id.Credentials()
		if !ok {
			return aws.Credentials{}, unavailable(id.ProviderName(), "adapt", "identity is not an access key credential", nil)
		}
		exp, canExpire := id.Expiration()
		return aws.Credentials{
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			SessionToken:    c.SessionToken,
			Source:          id.ProviderName(),
			CanExpire:       canExpire,
			Expires:         exp,
		}, nil
	})
}
