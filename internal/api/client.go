// Package api is the HTTP client for the SmartBin backend. Every call
// carries the bearer credential from the session; transport and HTTP
// failures map onto the client error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"smartbin-scan/internal/capture"
	"smartbin-scan/internal/model"
	"smartbin-scan/pkg/apierror"
)

// CredentialSource supplies the bearer token. The session implements it and
// enforces expiry before any request leaves the client.
type CredentialSource interface {
	Credential() (string, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
}

func New(baseURL string, httpClient *http.Client, creds CredentialSource) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		creds:   creds,
	}
}

// Login exchanges credentials for a bearer token. Unauthenticated.
func (c *Client) Login(ctx context.Context, name string, password string) (model.LoginResponse, error) {
	body, err := json.Marshal(map[string]string{"name": name, "password": password})
	if err != nil {
		return model.LoginResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return model.LoginResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out model.LoginResponse
	if err := c.do(req, &out, apierror.KindUploadTransport); err != nil {
		return model.LoginResponse{}, err
	}

	return out, nil
}

// ValidateQR checks a decoded bin token with the backend.
func (c *Client) ValidateQR(ctx context.Context, token string) (model.QRValidation, error) {
	endpoint := c.baseURL + "/api/qr/validate?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return model.QRValidation{}, err
	}
	if err := c.authorize(req); err != nil {
		return model.QRValidation{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.QRValidation{}, apierror.New(apierror.KindQRValidationTransport, "QR validation unreachable", err.Error())
	}
	defer resp.Body.Close()

	// The validation endpoint answers invalid tokens with the same body
	// shape regardless of status, so decode before judging the status.
	var out model.QRValidation
	if decodeErr := decodeBody(resp.Body, &out); decodeErr == nil {
		return out, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.QRValidation{}, apierror.WithStatus(apierror.KindQRValidationTransport, "QR validation failed", resp.Status, resp.StatusCode)
	}

	return model.QRValidation{}, apierror.New(apierror.KindQRValidationTransport, "unreadable validation response", "")
}

// UploadScan posts the captured still as a multipart form with a single
// image/jpeg field.
func (c *Client) UploadScan(ctx context.Context, frame *capture.Frame) (model.ScanResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="image"; filename="scan.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return model.ScanResult{}, err
	}
	if _, err := part.Write(frame.JPEG); err != nil {
		return model.ScanResult{}, err
	}
	if err := writer.Close(); err != nil {
		return model.ScanResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/scan", &body)
	if err != nil {
		return model.ScanResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := c.authorize(req); err != nil {
		return model.ScanResult{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.ScanResult{}, apierror.New(apierror.KindUploadTransport, "scan upload failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readErrorDetail(resp.Body)
		return model.ScanResult{}, apierror.WithStatus(apierror.KindUploadRejected, "scan rejected by backend", detail, resp.StatusCode)
	}

	var out model.ScanResult
	if err := decodeBody(resp.Body, &out); err != nil {
		return model.ScanResult{}, apierror.New(apierror.KindUploadRejected, "unreadable scan result", err.Error())
	}

	return out, nil
}

// Summary fetches the authoritative points summary for boot hydration.
func (c *Client) Summary(ctx context.Context) (model.Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/scan/transactions/summary", nil)
	if err != nil {
		return model.Summary{}, err
	}
	if err := c.authorize(req); err != nil {
		return model.Summary{}, err
	}

	var out model.Summary
	if err := c.do(req, &out, apierror.KindUploadTransport); err != nil {
		return model.Summary{}, err
	}

	return out, nil
}

// Me fetches the current user record.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return model.User{}, err
	}
	if err := c.authorize(req); err != nil {
		return model.User{}, err
	}

	var out model.User
	if err := c.do(req, &out, apierror.KindUploadTransport); err != nil {
		return model.User{}, err
	}

	return out, nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.creds == nil {
		return model.ErrNoCredential
	}

	token, err := c.creds.Credential()
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) do(req *http.Request, out interface{}, transportKind apierror.Kind) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return apierror.New(transportKind, "backend unreachable", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readErrorDetail(resp.Body)
		return apierror.WithStatus(apierror.KindUploadRejected, fmt.Sprintf("backend returned %s", resp.Status), detail, resp.StatusCode)
	}

	return decodeBody(resp.Body, out)
}

// decodeBody tolerates both a bare JSON body and the {success, data}
// envelope the backend wraps some responses in.
func decodeBody(r io.Reader, out interface{}) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var envelope model.APIResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}

	return json.Unmarshal(raw, out)
}

func readErrorDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}

	var envelope model.APIResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		return envelope.Error.Message
	}

	return strings.TrimSpace(string(raw))
}
