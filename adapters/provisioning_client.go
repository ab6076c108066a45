package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mqtt-device-agent/application"

	"github.com/rs/zerolog"
)

const (
	ProvisioningDefaultPath            = "/api/getdevicecredentials"
	ProvisioningDefaultTimeout         = 5 * time.Second
	ProvisioningDefaultMaxResponseSize = 1024

	provisioningContentType = "application/x-www-form-urlencoded"
)

var (
	ErrProvisioningUnexpectedStatus = fmt.Errorf("unexpected status")
	ErrProvisioningResponseTooLarge = fmt.Errorf("response too large")
)

type ProvisioningClientParams struct {
	// URL is the provisioning server base, e.g. http://192.0.2.10:3001
	URL  string
	Path string

	DeviceID     string
	DeviceSecret string

	Timeout         time.Duration
	MaxResponseSize int

	HTTPClient *http.Client

	Log zerolog.Logger
}

func (p *ProvisioningClientParams) EnsureDefaults() {
	if p.Path == "" {
		p.Path = ProvisioningDefaultPath
	}

	if p.Timeout == 0 {
		p.Timeout = ProvisioningDefaultTimeout
	}

	if p.MaxResponseSize <= 0 {
		p.MaxResponseSize = ProvisioningDefaultMaxResponseSize
	}

	if p.HTTPClient == nil {
		p.HTTPClient = &http.Client{Timeout: p.Timeout}
	}
}

// ProvisioningClient fetches device credentials and variables with a single
// form-encoded POST.
type ProvisioningClient struct {
	params   ProvisioningClientParams
	endpoint string
	body     string

	log zerolog.Logger
}

func NewProvisioningClient(params ProvisioningClientParams) (*ProvisioningClient, error) {
	params.EnsureDefaults()

	base, err := url.Parse(params.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid provisioning url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid provisioning url scheme %q", base.Scheme)
	}
	if params.DeviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	endpoint := base.JoinPath(params.Path)

	form := url.Values{}
	form.Set("dId", params.DeviceID)
	form.Set("password", params.DeviceSecret)

	return &ProvisioningClient{
		params:   params,
		endpoint: endpoint.String(),
		body:     form.Encode(),
		log:      params.Log,
	}, nil
}

func (p *ProvisioningClient) RequestConfiguration(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(p.body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", provisioningContentType)

	resp, err := p.params.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", application.ErrNetwork, err)
	}
	defer resp.Body.Close()

	p.log.Info().Str("endpoint", p.endpoint).Str("status", resp.Status).Msg("provisioning response")

	limit := int64(p.params.MaxResponseSize)
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, limit))
		return nil, fmt.Errorf("%w: %w: %d", application.ErrBootstrap, ErrProvisioningUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", application.ErrNetwork, err)
	}
	if len(body) > p.params.MaxResponseSize {
		return nil, fmt.Errorf("%w: %w: limit %d bytes", application.ErrBootstrap, ErrProvisioningResponseTooLarge, p.params.MaxResponseSize)
	}

	return body, nil
}

var _ application.Provisioner = &ProvisioningClient{}
