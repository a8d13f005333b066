package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "settlement-matching-service/pkg/errors"
	"settlement-matching-service/pkg/logger"
)

// ClientConfig configures the HTTP verification adapter.
type ClientConfig struct {
	Endpoint string        `json:"endpoint"`
	APIKey   string        `json:"api_key,omitempty"`
	Timeout  time.Duration `json:"timeout"`
}

// DefaultClientConfig returns sensible client defaults.
func DefaultClientConfig(endpoint string) *ClientConfig {
	return &ClientConfig{
		Endpoint: endpoint,
		Timeout:  30 * time.Second,
	}
}

// Validate checks the client configuration.
func (c *ClientConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("verification endpoint cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("verification timeout must be positive: %s", c.Timeout)
	}
	return nil
}

// HTTPVerifier calls the external verification service over HTTP. Each
// Review call is a single POST carrying one batch of pairs.
type HTTPVerifier struct {
	config *ClientConfig
	client *http.Client
	logger logger.Logger
}

// NewHTTPVerifier creates an HTTP-backed Verifier.
func NewHTTPVerifier(config *ClientConfig) (*HTTPVerifier, error) {
	if config == nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeMissingConfig, "verification client", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "verification client", err)
	}

	return &HTTPVerifier{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.GetGlobalLogger().WithComponent("verify_client"),
	}, nil
}

type reviewRequest struct {
	Pairs []PairRequest `json:"pairs"`
}

// Review submits one batch and decodes the verdict array. The per-call
// timeout is enforced both through the context deadline and the underlying
// HTTP client.
func (v *HTTPVerifier) Review(ctx context.Context, pairs []PairRequest) ([]Verdict, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()

	body, err := json.Marshal(reviewRequest{Pairs: pairs})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryVerification, apperrors.CodeVerifyResponse, "failed to encode verification request")
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, v.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryVerification, apperrors.CodeVerifyTransport, "failed to build verification request")
	}
	req.Header.Set("Content-Type", "application/json")
	if v.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.config.APIKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		code := apperrors.CodeVerifyTransport
		if callCtx.Err() == context.DeadlineExceeded {
			code = apperrors.CodeVerifyTimeout
		}
		return nil, apperrors.Wrap(err, apperrors.CategoryVerification, code, "verification request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.CategoryVerification, apperrors.CodeVerifyTransport,
			fmt.Sprintf("verification service returned status %d", resp.StatusCode))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryVerification, apperrors.CodeVerifyTransport, "failed to read verification response")
	}

	var verdicts []Verdict
	if err := json.Unmarshal(payload, &verdicts); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryVerification, apperrors.CodeVerifyResponse, "failed to decode verification response")
	}

	v.logger.WithFields(logger.Fields{
		"pairs":    len(pairs),
		"verdicts": len(verdicts),
	}).Debug("Verification batch reviewed")

	return verdicts, nil
}
