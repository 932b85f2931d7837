package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"checkout-proxy/internal/logger"

	"go.uber.org/zap"
)

const brevoAPIURL = "https://api.brevo.com/v3/smtp/email"

type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type Attachment struct {
	URL  string
	Name string
}

type Email struct {
	TemplateID  int64
	To          []Recipient
	Params      map[string]string
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, m Email) error
}

type brevoAttachment struct {
	Content string `json:"content"`
	Name    string `json:"name"`
}

type brevoPayload struct {
	To         []Recipient       `json:"to"`
	TemplateID int64             `json:"templateId"`
	Params     map[string]string `json:"params"`
	Attachment []brevoAttachment `json:"attachment,omitempty"`
}

// BrevoError is a non-2xx answer from the transactional mail API.
type BrevoError struct {
	StatusCode int
	Body       string
}

func (e *BrevoError) Error() string {
	return fmt.Sprintf("brevo: status %d: %s", e.StatusCode, e.Body)
}

type BrevoMailer struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewBrevoMailer(apiKey string) *BrevoMailer {
	return &BrevoMailer{
		apiKey:     apiKey,
		endpoint:   brevoAPIURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (m *BrevoMailer) Send(ctx context.Context, email Email) error {
	if m.apiKey == "" {
		return ErrMailerNotReady
	}
	if email.TemplateID == 0 || len(email.To) == 0 {
		return fmt.Errorf("brevo: template id and recipient are required")
	}

	params := email.Params
	if params == nil {
		params = map[string]string{}
	}
	payload := brevoPayload{
		To:         email.To,
		TemplateID: email.TemplateID,
		Params:     params,
		Attachment: m.download(ctx, email.Attachments),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", m.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("brevo: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &BrevoError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

// download fetches each attachment and base64 encodes it. Files that cannot
// be fetched are left out of the mail.
func (m *BrevoMailer) download(ctx context.Context, attachments []Attachment) []brevoAttachment {
	var out []brevoAttachment
	for _, a := range attachments {
		if a.URL == "" || a.Name == "" {
			continue
		}

		content, err := m.fetch(ctx, a.URL)
		if err != nil {
			logger.FromCtx(ctx).Warn("failed to download attachment",
				zap.String("url", a.URL),
				zap.Error(err),
			)
			continue
		}
		if len(content) == 0 {
			continue
		}

		out = append(out, brevoAttachment{
			Content: base64.StdEncoding.EncodeToString(content),
			Name:    path.Base(a.Name),
		})
	}
	return out
}

func (m *BrevoMailer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
