// Package vto talks to the upstream virtual try-on inference service.
package vto

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/optimosight/vto-gateway/internal/config"
)

var (
	// ErrServiceUnreachable indicates the upstream could not be connected to.
	ErrServiceUnreachable = errors.New("vto_service_unreachable")
	// ErrServiceTimeout indicates the upstream did not answer in time.
	ErrServiceTimeout = errors.New("vto_service_timeout")
	// ErrNoProcessedImage indicates a 200 response without an image payload.
	ErrNoProcessedImage = errors.New("vto_no_processed_image")
)

// UpstreamError carries a non-200 upstream response to be relayed verbatim.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("vto upstream returned %d: %s", e.Status, e.Body)
}

// FileUpload is an in-memory image forwarded to the upstream service.
type FileUpload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Client wraps the upstream HTTP API. All methods classify transport errors
// into ErrServiceUnreachable or ErrServiceTimeout so handlers can map them
// to 503 and 504.
type Client struct {
	http    *http.Client
	baseURL string
	log     *zap.Logger
}

type ClientParam struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

func NewClient(p ClientParam) *Client {
	return &Client{
		http:    &http.Client{Timeout: p.Config.VTO.Timeout},
		baseURL: strings.TrimRight(p.Config.VTO.BaseURL, "/"),
		log:     p.Log.Named("vto.client"),
	}
}

// UploadImage sends the image to the face crop preprocessor and returns the
// processed image as a base64 string, whatever response key the upstream
// chose to put it under.
func (c *Client) UploadImage(ctx context.Context, image FileUpload) (string, error) {
	body, contentType, err := encodeMultipart(image, "file", map[string]string{"crop_face": "true"})
	if err != nil {
		return "", err
	}

	resp, err := c.post(ctx, c.baseURL+"/api/v1/makeup/upload_image", contentType, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := c.readOK(resp)
	if err != nil {
		return "", err
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	for _, key := range []string{"image", "processed_image", "data"} {
		if img, ok := decoded[key].(string); ok && img != "" {
			return img, nil
		}
	}
	c.log.Error("upstream upload response missing image", zap.ByteString("body", payload))
	return "", ErrNoProcessedImage
}

// ApplyMakeup renders the style onto the image and returns raw JPEG bytes.
// The upstream answers with a base64 field, optionally carrying a data URI
// prefix, which is stripped before decoding.
func (c *Client) ApplyMakeup(ctx context.Context, image FileUpload, styleName, productName, shadeColor string) ([]byte, error) {
	body, contentType, err := encodeMultipart(image, "image", map[string]string{
		"style_name":   styleName,
		"product_name": productName,
		"shade_color":  shadeColor,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, c.baseURL+"/api/v1/makeup/try", contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := c.readOK(resp)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		ImageBase64 string `json:"image_base64"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode apply response: %w", err)
	}
	if decoded.ImageBase64 == "" {
		return nil, ErrNoProcessedImage
	}

	encoded := decoded.ImageBase64
	if strings.HasPrefix(encoded, "data:image") {
		if _, rest, ok := strings.Cut(encoded, ","); ok {
			encoded = rest
		}
	}
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode apply image: %w", err)
	}
	return content, nil
}

// LiveMakeup forwards a live frame payload and returns the upstream JSON.
func (c *Client) LiveMakeup(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	return c.postJSON(ctx, c.baseURL+"/live_makeup", payload)
}

// LiveMakeupApply forwards a live apply payload and returns the upstream JSON.
func (c *Client) LiveMakeupApply(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	return c.postJSON(ctx, c.baseURL+"/live_makeup_apply", payload)
}

func (c *Client) postJSON(ctx context.Context, url string, payload map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := c.readOK(resp)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (c *Client) post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classify(url, err)
	}
	return resp, nil
}

func (c *Client) readOK(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

func (c *Client) classify(target string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		c.log.Warn("upstream timeout", zap.String("url", target), zap.Error(err))
		return ErrServiceTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		c.log.Warn("upstream timeout", zap.String("url", target), zap.Error(err))
		return ErrServiceTimeout
	}
	c.log.Warn("upstream unreachable", zap.String("url", target), zap.Error(err))
	return ErrServiceUnreachable
}

func encodeMultipart(image FileUpload, fileField string, fields map[string]string) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, image.Filename))
	contentType := image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image.Content); err != nil {
		return nil, "", err
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}

var Module = fx.Module("vto",
	fx.Provide(NewClient),
)
