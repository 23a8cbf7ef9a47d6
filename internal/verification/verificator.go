// Package verification implements the Verificator component: initiating
// User-ID verification and exchanging verification tokens for an
// activation token, as a client that calls the platform instead of
// serving the request.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/mpin-labs/mpinclient/internal/transport"
)

// Sentinel errors — the verification error taxonomy of spec.md §4.3/§7.
var (
	ErrInvalidVerificationUri  = errors.New("verification: uri missing code or user_id")
	ErrInvalidEmail            = errors.New("verification: invalid email address")
	ErrVerificationNotSupported = errors.New("verification: method not supported for this project")
)

// RequestBackoffError is returned when the server asks the caller to wait
// before retrying.
type RequestBackoffError struct{ Backoff int }

func (e *RequestBackoffError) Error() string {
	return fmt.Sprintf("verification: backoff %d seconds before retrying", e.Backoff)
}

// UnsuccessfulVerificationError carries the IDs so the caller can retry,
// per spec.md §4.3.
type UnsuccessfulVerificationError struct {
	ProjectID string
	UserID    string
	AccessID  string
}

func (e *UnsuccessfulVerificationError) Error() string {
	return fmt.Sprintf("verification: unsuccessful verification for user %q project %q", e.UserID, e.ProjectID)
}

// VerificationFailError wraps any other server error code.
type VerificationFailError struct{ Cause error }

func (e *VerificationFailError) Error() string { return fmt.Sprintf("verification: failed: %v", e.Cause) }
func (e *VerificationFailError) Unwrap() error  { return e.Cause }

// Method is the verification method a project is configured for.
type Method string

const (
	StandardEmail Method = "StandardEmail"
	FullCustom    Method = "FullCustom"
)

// SendVerificationEmailResult is returned on success.
type SendVerificationEmailResult struct {
	Backoff             int    `json:"backoff"`
	VerificationMethod  Method `json:"verificationMethod"`
}

// ActivationTokenResult is the outcome of exchanging a verification token.
type ActivationTokenResult struct {
	ProjectID       string `json:"projectId"`
	UserID          string `json:"userId"`
	ActivationToken string `json:"activationToken"`
	AccessID        string `json:"accessId"`
}

// Verificator drives the /verification/* endpoints.
type Verificator struct {
	Transport transport.Transport
	Logger    *slog.Logger
}

func New(t transport.Transport, logger *slog.Logger) *Verificator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verificator{Transport: t, Logger: logger}
}

type sendVerificationEmailRequest struct {
	UserID     string `json:"userId"`
	ProjectID  string `json:"projectId"`
	DeviceName string `json:"deviceName"`
	AccessID   string `json:"accessId,omitempty"`
}

// SendVerificationEmail starts email verification for userId/projectId.
func (v *Verificator) SendVerificationEmail(ctx context.Context, userID, projectID, deviceName string, accessID string) (SendVerificationEmailResult, error) {
	resp, err := v.Transport.Do(ctx, transport.Request{
		Method: "POST",
		Path:   "/verification/email",
		Body: sendVerificationEmailRequest{
			UserID: userID, ProjectID: projectID, DeviceName: deviceName, AccessID: accessID,
		},
	})
	if err != nil {
		return SendVerificationEmailResult{}, mapSendError(err)
	}

	var out SendVerificationEmailResult
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return SendVerificationEmailResult{}, &VerificationFailError{Cause: err}
	}
	return out, nil
}

func mapSendError(err error) error {
	var clientErr *transport.ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Code {
		case "REQUEST_BACKOFF":
			return &RequestBackoffError{Backoff: backoffFromContext(clientErr.Context)}
		case "INVALID_EMAIL_ADDRESS":
			return ErrInvalidEmail
		case "VERIFICATION_NOT_SUPPORTED":
			return ErrVerificationNotSupported
		default:
			return &VerificationFailError{Cause: clientErr}
		}
	}
	return &VerificationFailError{Cause: err}
}

func backoffFromContext(ctx transport.ErrorContext) int {
	if ctx == nil {
		return 0
	}
	switch v := ctx["backoff"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

type confirmationRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

// GetActivationTokenFromURI decodes a confirmation URI whose query carries
// `code` and `user_id`, and exchanges them for an activation token.
func (v *Verificator) GetActivationTokenFromURI(ctx context.Context, verificationURI string) (ActivationTokenResult, error) {
	u, err := url.Parse(verificationURI)
	if err != nil {
		return ActivationTokenResult{}, ErrInvalidVerificationUri
	}
	q := u.Query()
	code := q.Get("code")
	userID := q.Get("user_id")
	if code == "" || userID == "" {
		return ActivationTokenResult{}, ErrInvalidVerificationUri
	}
	return v.getActivationToken(ctx, userID, code)
}

// GetActivationToken exchanges a code/userId pair (delivered e.g. by an
// email verification code rather than a link) for an activation token.
func (v *Verificator) GetActivationToken(ctx context.Context, userID, verificationCode string) (ActivationTokenResult, error) {
	return v.getActivationToken(ctx, userID, verificationCode)
}

func (v *Verificator) getActivationToken(ctx context.Context, userID, code string) (ActivationTokenResult, error) {
	resp, err := v.Transport.Do(ctx, transport.Request{
		Method: "POST",
		Path:   "/verification/confirmation",
		Body:   confirmationRequest{Code: code, UserID: userID},
	})
	if err != nil {
		var clientErr *transport.ClientError
		if errors.As(err, &clientErr) && clientErr.Code == "UNSUCCESSFUL_VERIFICATION" {
			return ActivationTokenResult{}, &UnsuccessfulVerificationError{
				ProjectID: stringFromContext(clientErr.Context, "projectId"),
				UserID:    stringFromContext(clientErr.Context, "userId"),
				AccessID:  stringFromContext(clientErr.Context, "accessId"),
			}
		}
		return ActivationTokenResult{}, &VerificationFailError{Cause: err}
	}

	var out ActivationTokenResult
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return ActivationTokenResult{}, &VerificationFailError{Cause: err}
	}
	return out, nil
}

func stringFromContext(ctx transport.ErrorContext, key string) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx[key].(string)
	return s
}
