// Package session implements the SessionCoordinator component: retrieving
// and aborting the remote view of an authentication, signing or
// cross-device session, plus the app-link/QR/notification extractors that
// turn a deep-link payload into a session lookup (see the deeplink
// subpackage for the route-table dispatch built on top of these).
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mpin-labs/mpinclient/internal/signing"
	"github.com/mpin-labs/mpinclient/internal/transport"
)

// VerificationMethod mirrors verification.Method without importing that
// package, since SessionDetails is a read-only projection the server
// controls.
type VerificationMethod string

const (
	StandardEmail VerificationMethod = "StandardEmail"
	FullCustom    VerificationMethod = "FullCustom"
)

// IdentityType is the shape of the userId this project expects.
type IdentityType string

const (
	IdentityEmail       IdentityType = "Email"
	IdentityAlphanumeric IdentityType = "Alphanumeric"
)

// Family distinguishes the three session kinds spec.md §4.7 names.
type Family int

const (
	FamilyAuthentication Family = iota
	FamilySigning
	FamilyCrossDevice
)

// SessionDetails is the remote session view of spec.md §3.
type SessionDetails struct {
	SessionID              string
	AccessID                string
	UserID                  string
	ProjectID               string
	ProjectName             string
	ProjectLogoURL          string
	PinLength               int
	VerificationMethod      VerificationMethod
	VerificationURL         string
	VerificationCustomText  string
	IdentityType            IdentityType
	IdentityTypeLabel       string
	QuickCodeEnabled        bool
	LimitQuickCodeRegistration bool

	Status             string
	ExpireTime         int64
	SigningHash        string
	SigningDescription string
}

// Sentinel and typed errors — spec.md §4.7/§7's session taxonomy.
var (
	ErrInvalidSessionDetails = errors.New("session: blank session/access id")
	ErrInvalidAppLink        = errors.New("session: app link has no fragment")
	ErrInvalidQRCode         = errors.New("session: qr payload has no fragment")
	ErrInvalidNotificationPayload = errors.New("session: notification payload has no fragment")
)

// GetSessionFailError wraps a transport failure on session retrieval.
type GetSessionFailError struct{ Cause error }

func (e *GetSessionFailError) Error() string { return fmt.Sprintf("session: get failed: %v", e.Cause) }
func (e *GetSessionFailError) Unwrap() error  { return e.Cause }

// AbortSessionFailError wraps a transport failure on session abort.
type AbortSessionFailError struct{ Cause error }

func (e *AbortSessionFailError) Error() string { return fmt.Sprintf("session: abort failed: %v", e.Cause) }
func (e *AbortSessionFailError) Unwrap() error  { return e.Cause }

// Coordinator drives the code-status/dvs-session-details endpoints.
type Coordinator struct {
	Transport transport.Transport
}

func New(t transport.Transport) *Coordinator { return &Coordinator{Transport: t} }

type statusRequest struct {
	AccessID string `json:"accessId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Status   string `json:"status"`
}

// endpointFor maps a session family to the endpoint that reads/updates/
// aborts it. Authentication and cross-device sessions share the single
// code-status endpoint (read/update/abort/signed via the "status" field);
// signing sessions are the one family with their own details endpoint.
func endpointFor(family Family) string {
	if family == FamilySigning {
		return "/dvs/session/details"
	}
	return "/rps/v2/codeStatus"
}

// GetSession retrieves the SessionDetails for id, tagged with the
// code-status ("wid") request, for the given session family.
func (c *Coordinator) GetSession(ctx context.Context, family Family, id string) (SessionDetails, error) {
	if id == "" {
		return SessionDetails{}, ErrInvalidSessionDetails
	}
	req := statusRequest{Status: "wid"}
	if family == FamilySigning || family == FamilyCrossDevice {
		req.SessionID = id
	} else {
		req.AccessID = id
	}

	resp, err := c.Transport.Do(ctx, transport.Request{Method: "POST", Path: endpointFor(family), Body: req})
	if err != nil {
		return SessionDetails{}, &GetSessionFailError{Cause: err}
	}
	var out sessionDetailsWire
	if jsonErr := json.Unmarshal(resp.Body, &out); jsonErr != nil {
		return SessionDetails{}, &GetSessionFailError{Cause: jsonErr}
	}
	return out.toDomain(), nil
}

// AbortSession posts status=abort for id.
func (c *Coordinator) AbortSession(ctx context.Context, family Family, id string) error {
	if id == "" {
		return ErrInvalidSessionDetails
	}
	req := statusRequest{Status: "abort"}
	if family == FamilySigning || family == FamilyCrossDevice {
		req.SessionID = id
	} else {
		req.AccessID = id
	}
	if _, err := c.Transport.Do(ctx, transport.Request{Method: "POST", Path: endpointFor(family), Body: req}); err != nil {
		return &AbortSessionFailError{Cause: err}
	}
	return nil
}

// CompleteCrossDeviceSigning posts status=signed with the base64-encoded
// JSON signature to the code-status endpoint, per spec.md §4.7's cross-device
// variant (distinct from DocumentSigner's own PUT-based completion in
// internal/signing, which is used for a direct, non-cross-device sign).
func (c *Coordinator) CompleteCrossDeviceSigning(ctx context.Context, sessionID string, sig signing.Signature) error {
	if sessionID == "" {
		return ErrInvalidSessionDetails
	}
	encoded, err := json.Marshal(sig)
	if err != nil {
		return &AbortSessionFailError{Cause: err}
	}
	req := struct {
		SessionID string `json:"sessionId"`
		Status    string `json:"status"`
		Signature string `json:"signature"`
	}{
		SessionID: sessionID,
		Status:    "signed",
		Signature: base64.StdEncoding.EncodeToString(encoded),
	}
	if _, err := c.Transport.Do(ctx, transport.Request{Method: "POST", Path: endpointFor(FamilyCrossDevice), Body: req}); err != nil {
		var clientErr *transport.ClientError
		if errors.As(err, &clientErr) && clientErr.Code == "INVALID_REQUEST_PARAMETERS" && clientErr.ParamsContext() == "id" {
			return signing.ErrInvalidSigningSession
		}
		return &AbortSessionFailError{Cause: err}
	}
	return nil
}

// --- Entry-point extractors (spec.md §4.7) ---

// FromAppLink extracts the fragment of appLink as the session/access id
// and retrieves the session.
func (c *Coordinator) FromAppLink(ctx context.Context, family Family, appLink string) (SessionDetails, error) {
	id, ok := fragmentOf(appLink)
	if !ok {
		return SessionDetails{}, ErrInvalidAppLink
	}
	return c.GetSession(ctx, family, id)
}

// FromQRCode extracts the fragment of a scanned QR payload the same way
// as FromAppLink.
func (c *Coordinator) FromQRCode(ctx context.Context, family Family, qrPayload string) (SessionDetails, error) {
	id, ok := fragmentOf(qrPayload)
	if !ok {
		return SessionDetails{}, ErrInvalidQRCode
	}
	return c.GetSession(ctx, family, id)
}

// FromNotificationPayload extracts the fragment of the qrURL field of a
// push-notification payload and retrieves the session.
func (c *Coordinator) FromNotificationPayload(ctx context.Context, family Family, qrURL string) (SessionDetails, error) {
	id, ok := fragmentOf(qrURL)
	if !ok {
		return SessionDetails{}, ErrInvalidNotificationPayload
	}
	return c.GetSession(ctx, family, id)
}

func fragmentOf(uri string) (string, bool) {
	_, frag, found := strings.Cut(uri, "#")
	if !found || frag == "" {
		return "", false
	}
	return frag, true
}

type sessionDetailsWire struct {
	SessionID                 string `json:"sessionId"`
	AccessID                  string `json:"accessId"`
	UserID                    string `json:"userId"`
	ProjectID                 string `json:"projectId"`
	ProjectName               string `json:"projectName"`
	ProjectLogoURL            string `json:"projectLogoUrl"`
	PinLength                 int    `json:"pinLength"`
	VerificationMethod        string `json:"verificationMethod"`
	VerificationURL           string `json:"verificationUrl"`
	VerificationCustomText    string `json:"verificationCustomText"`
	IdentityType              string `json:"identityType"`
	IdentityTypeLabel         string `json:"identityTypeLabel"`
	QuickCodeEnabled          bool   `json:"quickCodeEnabled"`
	LimitQuickCodeRegistration *bool `json:"limitQuickCodeRegistration,omitempty"`
	Status                    string `json:"status"`
	ExpireTime                int64  `json:"expireTime"`
	SigningHash               string `json:"signingHash"`
	SigningDescription        string `json:"signingDescription"`
}

func (w sessionDetailsWire) toDomain() SessionDetails {
	d := SessionDetails{
		SessionID:              w.SessionID,
		AccessID:               w.AccessID,
		UserID:                 w.UserID,
		ProjectID:              w.ProjectID,
		ProjectName:            w.ProjectName,
		ProjectLogoURL:         w.ProjectLogoURL,
		PinLength:              w.PinLength,
		VerificationMethod:     VerificationMethod(w.VerificationMethod),
		VerificationURL:        w.VerificationURL,
		VerificationCustomText: w.VerificationCustomText,
		IdentityType:           IdentityType(w.IdentityType),
		IdentityTypeLabel:      w.IdentityTypeLabel,
		QuickCodeEnabled:       w.QuickCodeEnabled,
		Status:                 w.Status,
		ExpireTime:             w.ExpireTime,
		SigningHash:            w.SigningHash,
		SigningDescription:     w.SigningDescription,
	}
	// limitQuickCodeRegistration defaults to false when the server omits
	// it (see DESIGN.md Open Question decisions).
	if w.LimitQuickCodeRegistration != nil {
		d.LimitQuickCodeRegistration = *w.LimitQuickCodeRegistration
	}
	return d
}
