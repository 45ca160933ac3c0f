package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	zerrors "github.com/zzenonn/zstream/internal/errors"
)

// HTTPFragmentRepository talks to a plain HTTP block server that serves
// fragments at <base>/<key> (GET) and accepts them with PUT and DELETE.
type HTTPFragmentRepository struct {
	client  *http.Client
	baseURL string
}

// NewHTTPFragmentRepository creates a repository rooted at baseURL.
func NewHTTPFragmentRepository(client *http.Client, baseURL string) *HTTPFragmentRepository {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFragmentRepository{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (r *HTTPFragmentRepository) url(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return r.baseURL + "/" + strings.Join(segments, "/")
}

func (r *HTTPFragmentRepository) do(ctx context.Context, method, key string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.url(key), body)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s", zerrors.ErrFragmentNotFound, method, r.url(key))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: unexpected status %s", method, r.url(key), resp.Status)
	}
	return resp, nil
}

// Upload PUTs a fragment to the block server.
func (r *HTTPFragmentRepository) Upload(ctx context.Context, key string, reader io.Reader, quiet bool) (string, error) {
	resp, err := r.do(ctx, http.MethodPut, key, reader)
	if err != nil {
		return "", fmt.Errorf("failed to upload to block server: %w", err)
	}
	resp.Body.Close()
	log.Debugf("Uploaded %s", r.url(key))
	return r.url(key), nil
}

// Download GETs a fragment from the block server.
func (r *HTTPFragmentRepository) Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error) {
	resp, err := r.do(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download from block server: %w", err)
	}
	return resp.Body, nil
}

// Delete removes a fragment from the block server.
func (r *HTTPFragmentRepository) Delete(ctx context.Context, key string) error {
	resp, err := r.do(ctx, http.MethodDelete, key, nil)
	if err != nil {
		return fmt.Errorf("failed to delete from block server: %w", err)
	}
	resp.Body.Close()
	return nil
}

// DeletePrefix is not supported by static block servers.
func (r *HTTPFragmentRepository) DeletePrefix(ctx context.Context, prefix string) error {
	return fmt.Errorf("delete prefix %s on %s: %w", prefix, r.baseURL, zerrors.ErrNotImplemented)
}

// GetBucketName returns the base URL.
func (r *HTTPFragmentRepository) GetBucketName() string {
	return r.baseURL
}

// GetStorageType returns the storage type.
func (r *HTTPFragmentRepository) GetStorageType() string {
	return string(HTTPType)
}
