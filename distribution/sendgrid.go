package distribution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/coreybb/quorum/models"
)

const sendgridMailEndpoint = "https://api.sendgrid.com/v3/mail/send"

// SendGridTransport delivers minutes download links by email via the
// SendGrid v3 Mail Send API. Each recipient gets its own request so
// failures partition per recipient.
type SendGridTransport struct {
	apiKey          string
	fromEmail       string
	fromName        string
	downloadBaseURL string
	client          *http.Client
}

func NewSendGridTransport(apiKey, fromEmail, fromName, downloadBaseURL string) *SendGridTransport {
	return &SendGridTransport{
		apiKey:          apiKey,
		fromEmail:       fromEmail,
		fromName:        fromName,
		downloadBaseURL: strings.TrimRight(downloadBaseURL, "/"),
		client:          http.DefaultClient,
	}
}

func (t *SendGridTransport) Deliver(ctx context.Context, artifact ArtifactRef, emails []string) ([]RecipientResult, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	subject := "Meeting minutes"
	if artifact.MeetingTitle != "" {
		subject = fmt.Sprintf("Meeting minutes: %s", artifact.MeetingTitle)
	}
	downloadURL := fmt.Sprintf("%s/minutes/%s/download", t.downloadBaseURL, artifact.PDFGenerationID)
	body := fmt.Sprintf("The minutes for your meeting are ready.\n\nDownload them here: %s\n", downloadURL)

	results := make([]RecipientResult, 0, len(emails))
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			// Context gone: no outcome is known for the remaining
			// recipients, treat as a transport-level failure.
			return nil, fmt.Errorf("delivery aborted: %w", err)
		}

		if err := t.sendOne(ctx, email, subject, body); err != nil {
			results = append(results, RecipientResult{
				Email:  email,
				Status: models.RecipientStatusFailed,
				Error:  err.Error(),
			})
			continue
		}
		results = append(results, RecipientResult{Email: email, Status: models.RecipientStatusSent})
	}

	return results, nil
}

func (t *SendGridTransport) sendOne(ctx context.Context, recipientAddress, subject, textBody string) error {
	payload := sgMailPayload{
		Personalizations: []sgPersonalization{{
			To: []sgAddress{{Email: recipientAddress}},
		}},
		From:    sgAddress{Email: t.fromEmail, Name: t.fromName},
		Subject: subject,
		Content: []sgContent{{Type: "text/plain", Value: textBody}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SendGrid payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendgridMailEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create SendGrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("SendGrid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SendGrid returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// SendGrid v3 Mail Send API payload types.
type sgMailPayload struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}
