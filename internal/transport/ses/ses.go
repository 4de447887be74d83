// Package ses implements a Transport that sends emails via AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/shineum/courier/internal/email"
	"github.com/shineum/courier/internal/transport"
)

// Config holds the configuration for creating an SES Transport.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// ConfigurationSet is attached to every send when set.
	ConfigurationSet string
}

// Transport sends emails via the AWS SES v2 API.
type Transport struct {
	client           SendEmailAPI
	configurationSet string
	logger           *slog.Logger
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SES Transport with the given configuration.
// Static credentials are used when both keys are set; otherwise the default
// AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// The SDK retries throttled calls by default; a send is attempted once.
	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		o.RetryMaxAttempts = 1
	})

	return NewWithClient(client, cfg.ConfigurationSet), nil
}

// NewWithClient creates an SES Transport with a custom client, used for testing.
func NewWithClient(client SendEmailAPI, configurationSet string) *Transport {
	return &Transport{
		client:           client,
		configurationSet: configurationSet,
		logger:           slog.Default(),
	}
}

// Send delivers the message as a raw MIME document. The envelope lists every
// recipient, including Bcc, which is not present in the MIME headers.
func (t *Transport) Send(ctx context.Context, msg *email.Email) error {
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.FromHeader()),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.Cc,
			BccAddresses: msg.Bcc,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if t.configurationSet != "" {
		input.ConfigurationSetName = aws.String(t.configurationSet)
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return sendError(err)
	}

	if out != nil && out.MessageId != nil {
		t.logger.Debug("SES accepted message", "ses_message_id", *out.MessageId)
	}
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "ses"
}

// sendError classifies an SES API error. Bad requests and rejections that
// name an address become transport.ErrAddressRejected. An unverified sender
// identity is an account problem and, like every other API fault, becomes
// transport.ErrProtocol. Network and credential failures are returned
// unchanged.
func sendError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("ses: send: %w", err)
	}

	msg := strings.ToLower(apiErr.ErrorMessage())
	switch {
	case isAddressCode(apiErr.ErrorCode()) &&
		strings.Contains(msg, "address") &&
		!strings.Contains(msg, "not verified"):
		return fmt.Errorf("%w: ses: %s: %s", transport.ErrAddressRejected, apiErr.ErrorCode(), apiErr.ErrorMessage())
	default:
		return fmt.Errorf("%w: ses: %s: %s", transport.ErrProtocol, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
}

func isAddressCode(code string) bool {
	return code == "BadRequestException" || code == "MessageRejected"
}
