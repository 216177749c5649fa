// Package cloud2fa talks to the WorldPosta cloud 2FA service: TOTP
// verification and push notifications, both signed per internal/signing.
package cloud2fa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/worldposta/authproxy/internal/signing"
)

// defaultPollInterval is how often AwaitPush re-checks a pending push when
// the caller does not override it.
const defaultPollInterval = 500 * time.Millisecond

//go:generate mockgen -source=client.go -destination=cloud2famock/client_mock.go -package=cloud2famock

// Client is the cloud 2FA surface the auth engine depends on. Defined as an
// interface so the engine can be tested against a fake without dialing out.
type Client interface {
	VerifyTOTP(ctx context.Context, username, code string) (bool, error)
	SendPush(ctx context.Context, username string, meta PushMetadata) (requestID string, err error)
	PollStatus(ctx context.Context, requestID string) (PushStatus, error)
	AwaitPush(ctx context.Context, requestID string, deadline time.Time) PushStatus
}

// PushMetadata is the context shown to the user on the push notification.
type PushMetadata struct {
	ServiceName string
	DeviceInfo  string
	IPAddress   string
}

// HTTPClient is the retryablehttp-backed Client implementation.
type HTTPClient struct {
	endpoint     string
	signer       *signing.Signer
	http         *retryablehttp.Client
	pollInterval time.Duration
	log          *logrus.Entry
}

// New builds an HTTPClient for endpoint, signing every request with the
// given integration/secret key pair. timeout bounds a single HTTP call, not
// the overall push wait (see AwaitPush's deadline parameter).
func New(endpoint, integrationKey, secretKey string, timeout time.Duration, log *logrus.Entry) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil // the cloud client logs through logrus itself, not retryablehttp's own logger.
	rc.HTTPClient.Timeout = timeout

	// Retry only transport failures. An HTTP response of any status is a
	// verdict from the cloud service: non-2xx maps to a failed operation
	// (or a retried poll) at the caller, never to a blind resend here.
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}

		return false, nil
	}

	return &HTTPClient{
		endpoint:     strings.TrimRight(endpoint, "/"),
		signer:       signing.New(integrationKey, secretKey),
		http:         rc,
		pollInterval: defaultPollInterval,
		log:          log,
	}
}

// WithPollInterval overrides the default 500ms push poll cadence, mainly
// for tests that would otherwise run slowly.
func (c *HTTPClient) WithPollInterval(d time.Duration) *HTTPClient {
	c.pollInterval = d
	return c
}

type apiResponse struct {
	Valid     bool   `json:"valid"`
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

// request performs one signed call against the cloud API. body is nil for
// GET requests. It returns the decoded response body and whether the HTTP
// status indicated success (status < 300).
func (c *HTTPClient) request(ctx context.Context, method, path string, body interface{}) (apiResponse, bool, error) {
	bodyStr := signing.EmptyBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apiResponse{}, false, err
		}
		bodyStr = string(encoded)
	}

	headers, err := c.signer.Sign(bodyStr)
	if err != nil {
		return apiResponse{}, false, fmt.Errorf("signing request: %w", err)
	}

	url := c.endpoint + path

	var req *retryablehttp.Request
	if method == http.MethodGet {
		req, err = retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	} else {
		req, err = retryablehttp.NewRequestWithContext(ctx, method, url, strings.NewReader(bodyStr))
	}
	if err != nil {
		return apiResponse{}, false, err
	}

	req.Header.Set("Content-Type", headers.ContentType)
	req.Header.Set("X-Integration-Key", headers.IntegrationKey)
	req.Header.Set("X-Signature", headers.Signature)
	req.Header.Set("X-Timestamp", headers.Timestamp)
	req.Header.Set("X-Nonce", headers.Nonce)

	correlationID := uuid.NewString()
	req.Header.Set("X-Correlation-Id", correlationID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{"path": path, "correlation_id": correlationID}).Error("cloud 2fa request failed")
		return apiResponse{}, false, err
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return apiResponse{}, false, err
	}

	var decoded apiResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return apiResponse{}, false, fmt.Errorf("decoding cloud 2fa response: %w", err)
		}
	}

	return decoded, resp.StatusCode < 300, nil
}

// VerifyTOTP checks a TOTP/OTP code for username against the cloud service.
func (c *HTTPClient) VerifyTOTP(ctx context.Context, username, code string) (bool, error) {
	data, ok, err := c.request(ctx, http.MethodPost, "/v1/totp/verify", map[string]string{
		"externalUserId": username,
		"code":           code,
	})
	if err != nil {
		return false, err
	}

	valid := ok && data.Valid
	if !valid {
		c.log.WithField("user", username).Warn("totp verification failed")
	}

	return valid, nil
}

// SendPush asks the cloud service to push an approval prompt to username's
// enrolled device. An empty requestID means the push could not be sent;
// the caller should treat that as an authentication error, not a denial.
func (c *HTTPClient) SendPush(ctx context.Context, username string, meta PushMetadata) (string, error) {
	data, ok, err := c.request(ctx, http.MethodPost, "/v1/push/send", map[string]string{
		"externalUserId": username,
		"serviceName":    meta.ServiceName,
		"deviceInfo":     meta.DeviceInfo,
		"ipAddress":      meta.IPAddress,
	})
	if err != nil {
		return "", err
	}

	if ok && data.RequestID != "" {
		c.log.WithFields(logrus.Fields{"user": username, "request_id": data.RequestID}).Info("push sent")
		return data.RequestID, nil
	}

	c.log.WithField("user", username).WithField("error", data.Error).Warn("failed to send push")

	return "", nil
}

// PollStatus checks a push's current status once, without blocking for a
// terminal outcome.
func (c *HTTPClient) PollStatus(ctx context.Context, requestID string) (PushStatus, error) {
	data, ok, err := c.request(ctx, http.MethodGet, "/v1/push/status/"+requestID, nil)
	if err != nil {
		return PushError, err
	}

	if !ok {
		return PushError, nil
	}

	return parsePushStatus(data.Status), nil
}

// AwaitPush polls PollStatus until the push reaches a terminal status
// (approved, denied, expired) or deadline passes, whichever comes first. A
// deadline with no terminal status yet is reported as PushExpired. Transient
// PushError results from individual polls are retried, not treated as
// terminal, so every push resolves to exactly one terminal outcome.
func (c *HTTPClient) AwaitPush(ctx context.Context, requestID string, deadline time.Time) PushStatus {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.PollStatus(ctx, requestID)
		if err == nil {
			switch status {
			case PushApproved, PushDenied, PushExpired:
				return status
			case PushPending, PushError:
				// keep polling
			}
		}

		if !time.Now().Before(deadline) {
			c.log.WithField("request_id", requestID).Warn("push timed out")
			return PushExpired
		}

		select {
		case <-ctx.Done():
			return PushExpired
		case <-ticker.C:
		}
	}
}
