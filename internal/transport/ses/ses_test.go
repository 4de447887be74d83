package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shineum/courier/internal/email"
	"github.com/shineum/courier/internal/email/emailtest"
	"github.com/shineum/courier/internal/transport"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	mock.Mock
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sesv2.SendEmailOutput)
	return out, args.Error(1)
}

func testEmail() *email.Email {
	return &email.Email{
		FromName: "ACME",
		From:     "noreply@company.com",
		To:       []string{"to1@example.com", "to2@example.com"},
		Cc:       []string{"cc@example.com"},
		Bcc:      []string{"bcc@example.com"},
		Subject:  "Your Order Confirmation",
		TextBody: "Thank you for your order!",
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ses", NewWithClient(&mockSESClient{}, "").Name())
}

func TestSend_RawMessage(t *testing.T) {
	t.Parallel()

	client := &mockSESClient{}
	var input *sesv2.SendEmailInput
	client.On("SendEmail", mock.Anything, mock.AnythingOfType("*sesv2.SendEmailInput")).
		Run(func(args mock.Arguments) { input = args.Get(1).(*sesv2.SendEmailInput) }).
		Return(&sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil).
		Once()

	tr := NewWithClient(client, "")
	msg := testEmail()
	msg.ReplyTo = "support@company.com"
	msg.Attachments = []email.Attachment{{Filename: "invoice.pdf", ContentType: "application/pdf", Content: []byte("%PDF")}}

	require.NoError(t, tr.Send(context.Background(), msg))
	client.AssertExpectations(t)

	require.NotNil(t, input)
	assert.Equal(t, `"ACME" <noreply@company.com>`, aws.ToString(input.FromEmailAddress))
	assert.Equal(t, []string{"to1@example.com", "to2@example.com"}, input.Destination.ToAddresses)
	assert.Equal(t, []string{"cc@example.com"}, input.Destination.CcAddresses)
	assert.Equal(t, []string{"bcc@example.com"}, input.Destination.BccAddresses)
	assert.Equal(t, []string{"support@company.com"}, input.ReplyToAddresses)
	assert.Nil(t, input.ConfigurationSetName)
	assert.Nil(t, input.Content.Simple)
	require.NotNil(t, input.Content.Raw)

	parsed, err := emailtest.Parse(input.Content.Raw.Data)
	require.NoError(t, err)
	assert.Equal(t, "Your Order Confirmation", parsed.Subject)
	assert.Equal(t, "Thank you for your order!", parsed.TextBody)
	assert.Empty(t, parsed.Bcc)
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "invoice.pdf", parsed.Attachments[0].Filename)
	assert.Equal(t, []byte("%PDF"), parsed.Attachments[0].Content)
}

func TestSend_ConfigurationSet(t *testing.T) {
	t.Parallel()

	client := &mockSESClient{}
	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return aws.ToString(in.ConfigurationSetName) == "transactional"
	})).Return(&sesv2.SendEmailOutput{}, nil).Once()

	require.NoError(t, NewWithClient(client, "transactional").Send(context.Background(), testEmail()))
	client.AssertExpectations(t)
}

func TestSend_SingleAttempt(t *testing.T) {
	t.Parallel()

	client := &mockSESClient{}
	client.On("SendEmail", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset by peer"))

	err := NewWithClient(client, "").Send(context.Background(), testEmail())
	require.Error(t, err)
	assert.NotErrorIs(t, err, transport.ErrProtocol)
	assert.NotErrorIs(t, err, transport.ErrAddressRejected)
	assert.Contains(t, err.Error(), "connection reset by peer")
	client.AssertNumberOfCalls(t, "SendEmail", 1)
}

func TestSend_EncodingFailure(t *testing.T) {
	t.Parallel()

	client := &mockSESClient{}
	msg := testEmail()
	msg.From = ""

	err := NewWithClient(client, "").Send(context.Background(), msg)
	require.ErrorIs(t, err, email.ErrEncoding)
	client.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestSendError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		rejected bool
		protocol bool
	}{
		{
			name:     "illegal address",
			err:      &smithy.GenericAPIError{Code: "BadRequestException", Message: "Illegal address"},
			rejected: true,
		},
		{
			name:     "rejected recipient address",
			err:      &smithy.GenericAPIError{Code: "MessageRejected", Message: "Recipient address rejected: user unknown"},
			rejected: true,
		},
		{
			name: "unverified sender identity",
			err: &smithy.GenericAPIError{
				Code:    "MessageRejected",
				Message: "Email address is not verified. The following identities failed the check in region US-EAST-1: noreply@example.com",
			},
			protocol: true,
		},
		{
			name:     "address in unrelated fault",
			err:      &smithy.GenericAPIError{Code: "AccountSuspendedException", Message: "Sending paused for the account address"},
			protocol: true,
		},
		{
			name:     "message rejected",
			err:      &smithy.GenericAPIError{Code: "MessageRejected", Message: "Message contains a virus"},
			protocol: true,
		},
		{
			name:     "throttled",
			err:      &smithy.GenericAPIError{Code: "TooManyRequestsException", Message: "Rate exceeded"},
			protocol: true,
		},
		{
			name: "network",
			err:  errors.New("dial tcp: i/o timeout"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := sendError(tt.err)
			assert.Equal(t, tt.rejected, errors.Is(err, transport.ErrAddressRejected))
			assert.Equal(t, tt.protocol, errors.Is(err, transport.ErrProtocol))
		})
	}
}
