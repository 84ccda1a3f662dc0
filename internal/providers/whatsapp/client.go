package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultBaseURL = "https://graph.facebook.com"
const defaultAPIVersion = "v21.0"

// Client talks to the WhatsApp Cloud API (Facebook Graph). Credentials are
// per-call because each profile carries its own token and sender number.
type Client struct {
	BaseURL    string
	APIVersion string
	HTTP       *http.Client
}

type Credentials struct {
	AccessToken   string
	PhoneNumberID string
	BusinessID    string
}

type TemplateRef struct {
	Name     string
	Language string
}

// APIError is a Graph-level rejection. Message carries the provider's
// error.message text verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("whatsapp api returned status %d", e.StatusCode)
}

var ErrMissingCredentials = errors.New("missing access token or phone number id")

type sendBody struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         templateBody `json:"template"`
}

type templateBody struct {
	Name       string           `json:"name"`
	Language   languageBody     `json:"language"`
	Components []map[string]any `json:"components"`
}

type languageBody struct {
	Code string `json:"code"`
}

// SendTemplateMessage issues exactly one send. No retries here; a failed
// action re-enters the queue and is picked up by a later run.
func (c *Client) SendTemplateMessage(ctx context.Context, creds Credentials, to string, tpl TemplateRef, components []map[string]any) error {
	if creds.AccessToken == "" || creds.PhoneNumberID == "" {
		return ErrMissingCredentials
	}
	if components == nil {
		components = []map[string]any{}
	}

	body, err := json.Marshal(sendBody{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "template",
		Template: templateBody{
			Name:       tpl.Name,
			Language:   languageBody{Code: tpl.Language},
			Components: components,
		},
	})
	if err != nil {
		return err
	}

	endpoint := c.baseURL() + "/" + c.apiVersion() + "/" + creds.PhoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}
	return nil
}

type TemplateDefinition struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Language   string           `json:"language"`
	Status     string           `json:"status"`
	Category   string           `json:"category"`
	Components []map[string]any `json:"components"`
}

// ListMessageTemplates fetches the template definitions registered under the
// profile's business account.
func (c *Client) ListMessageTemplates(ctx context.Context, creds Credentials) ([]TemplateDefinition, error) {
	if creds.AccessToken == "" || creds.BusinessID == "" {
		return nil, ErrMissingCredentials
	}

	endpoint := c.baseURL() + "/" + c.apiVersion() + "/" + creds.BusinessID + "/message_templates"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp list templates request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp)
	}

	var out struct {
		Data []TemplateDefinition `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("whatsapp list templates decode: %w", err)
	}
	return out.Data, nil
}

func parseAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(b, &e)
	return &APIError{StatusCode: resp.StatusCode, Message: e.Error.Message}
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return defaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) apiVersion() string {
	if c.APIVersion == "" {
		return defaultAPIVersion
	}
	return c.APIVersion
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}
