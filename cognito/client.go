// Package cognito implements the identity provider protocol against the AWS
// Cognito Identity Provider JSON wire: POST requests carrying an
// X-Amz-Target action header and application/x-amz-json-1.1 bodies. It
// satisfies idsession.Provider and maps every wire error code onto the
// idsession error taxonomy, so callers never see raw exception names.
//
// Only the user-facing (unsigned) API surface is spoken: everything here
// authenticates with tokens or client secret hash, never with SigV4
// credentials.
package cognito

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arvigo/idsession"
)

const (
	targetPrefix  = "AWSCognitoIdentityProviderService."
	wireContent   = "application/x-amz-json-1.1"
	defaultUA     = "idsession-cognito/1.0"
	maxWireBody   = 1 << 20
	clientTimeout = 30 * time.Second
)

var _ idsession.Provider = (*Client)(nil)

var errMissingAuthResult = errors.New("response carried neither tokens nor a challenge")

func errUnsupportedChallenge(name string) error {
	return fmt.Errorf("unsupported challenge %q", name)
}

// Config configures a [Client].
type Config struct {
	// Region selects the regional endpoint, e.g. "eu-central-1". Ignored
	// when Endpoint is set.
	Region string
	// Endpoint overrides the endpoint URL entirely. Useful against
	// cognito-local or a test server.
	Endpoint string
	// ClientID is the app client id. Required.
	ClientID string
	// ClientSecret enables the SECRET_HASH parameter on every identity-bound
	// call. Leave empty for public app clients.
	ClientSecret string
	// HTTPClient defaults to a 30s-timeout client.
	HTTPClient *http.Client
	// UserAgent defaults to an idsession identifier.
	UserAgent string
}

// Client speaks the Cognito Identity Provider wire. Safe for concurrent
// use; all configuration is fixed at construction.
type Client struct {
	endpoint     string
	clientID     string
	clientSecret string
	userAgent    string
	httpClient   *http.Client
}

// NewClient validates the configuration and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("ClientID required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region == "" {
			return nil, errors.New("Region or Endpoint required")
		}
		endpoint = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/", cfg.Region)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: clientTimeout}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUA
	}

	return &Client{
		endpoint:     endpoint,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		userAgent:    userAgent,
		httpClient:   httpClient,
	}, nil
}

// secretHash computes Base64(HMAC-SHA256(username + clientID, secret)).
// Returns "" for public clients, and callers omit the parameter then.
func (c *Client) secretHash(username string) string {
	if c.clientSecret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(c.clientSecret))
	mac.Write([]byte(username + c.clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// call performs one action round trip. in is marshalled as the body, out
// (when non-nil) receives the decoded 200 response. Non-200 responses are
// decoded as wire errors and mapped onto the taxonomy.
func (c *Client) call(ctx context.Context, action, op string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", wireContent)
	req.Header.Set("X-Amz-Target", targetPrefix+action)
	req.Header.Set("User-Agent", c.userAgent)
	if id := idsession.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	} else {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return idsession.E(idsession.KindProviderUnreachable, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWireBody))
	if err != nil {
		return idsession.E(idsession.KindProviderUnreachable, op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.wireError(op, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return idsession.E(idsession.KindProviderUnreachable, op,
			fmt.Errorf("decode %s response: %w", action, err))
	}
	return nil
}

type wireErrorBody struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
	AltMsg  string `json:"Message"`
}

// wireError maps a non-200 body onto the taxonomy. The __type field may
// carry a java-style "com.amazonaws...#Name" prefix; only the trailing name
// matters.
func (c *Client) wireError(op string, status int, data []byte) error {
	var body wireErrorBody
	_ = json.Unmarshal(data, &body)

	name := body.Type
	if i := strings.LastIndexByte(name, '#'); i >= 0 {
		name = name[i+1:]
	}
	msg := body.Message
	if msg == "" {
		msg = body.AltMsg
	}
	if name == "" {
		return idsession.E(idsession.KindProviderUnreachable, op,
			fmt.Errorf("http %d: %s", status, strings.TrimSpace(string(data))))
	}

	cause := fmt.Errorf("%s: %s", name, msg)
	return idsession.E(kindForException(name), op, cause)
}

func kindForException(name string) idsession.Kind {
	switch name {
	case "UserNotFoundException":
		return idsession.KindIdentityNotFound
	case "NotAuthorizedException":
		return idsession.KindInvalidCredential
	case "CodeMismatchException", "EnableSoftwareTokenMFAException":
		return idsession.KindCodeMismatch
	case "ExpiredCodeException":
		return idsession.KindCodeExpired
	case "InvalidPasswordException":
		return idsession.KindWeakCredential
	case "UsernameExistsException":
		return idsession.KindAlreadyRegistered
	case "UserNotConfirmedException":
		return idsession.KindNotConfirmed
	case "PasswordResetRequiredException":
		return idsession.KindNewCredentialRequired
	default:
		// Throttling, limit and internal errors are all retryable from the
		// caller's point of view.
		return idsession.KindProviderUnreachable
	}
}

// attributeString flattens a normalized attribute value back to the wire
// representation.
func attributeString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
