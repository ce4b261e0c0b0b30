package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// sendViaResend sends one message through the Resend API. Rate limit errors
// are reported but not retried.
func (a *Alerter) sendViaResend(ctx context.Context, subject, htmlBody string) error {
	if a.client == nil {
		return fmt.Errorf("resend client not initialized")
	}

	params := &resend.SendEmailRequest{
		From:    a.config.From,
		To:      a.config.To,
		Subject: subject,
		Html:    htmlBody,
	}

	sent, err := a.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		var rateLimitErr *resend.RateLimitError
		if errors.As(err, &rateLimitErr) {
			a.logger.Warn().
				Str("limit", rateLimitErr.Limit).
				Str("remaining", rateLimitErr.Remaining).
				Str("reset", rateLimitErr.Reset).
				Msg("resend rate limit exceeded")
			return fmt.Errorf("email rate limit exceeded (limit: %s, resets in: %s seconds): %w",
				rateLimitErr.Limit, rateLimitErr.Reset, err)
		}
		return fmt.Errorf("resend API error: %w", err)
	}

	a.logger.Info().
		Str("email_id", sent.Id).
		Strs("to", a.config.To).
		Msg("alert email sent via Resend")
	return nil
}
