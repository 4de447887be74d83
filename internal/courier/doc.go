// Package courier composes transactional emails and dispatches them through
// a mail transport.
//
// A Message is assembled with a Builder, which rejects missing values as
// they are supplied and checks the cross-field rules in Build:
//
//	msg, err := courier.NewBuilder().
//		From("noreply@company.com").
//		WithOrganizationName("ACME").
//		To("client@example.com").
//		WithSubject("Your Order Confirmation").
//		WithTemplate("order-confirmation").
//		WithVariable("orderId", 12345).
//		Build()
//
// A Dispatcher validates every address, renders the template or uses the
// literal body, and hands the result to its transport exactly once:
//
//	d := courier.New(smtpTransport, renderer)
//	err = d.Send(ctx, msg)
//
// Failures are *Error values. Match them by kind with errors.Is against
// ErrInvalidArgument, ErrValidationFailed, ErrInvalidAddress, ErrTemplate
// and ErrTransport, and inspect Cause or Status for transport failures.
package courier
