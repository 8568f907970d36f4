package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nls08/NLS-Portal-sub001/logging"
)

// ObjectStoreClient deletes uploaded files through the storage provider's HTTP API:
// DELETE {baseURL}/{key} with a bearer token.
type ObjectStoreClient struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewObjectStoreClient(baseURL, token string, httpClient *http.Client) *ObjectStoreClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ObjectStoreClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		breaker: NewBreaker("object-store-cb", 30*time.Second),
	}
}

func (c *ObjectStoreClient) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	endpoint := c.baseURL + "/" + url.PathEscape(key)

	return guarded(c.breaker, "object-store", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
		if err != nil {
			return err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("deleting object %s: %w", key, err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		// Already gone counts as deleted.
		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("deleting object %s: storage responded %d", key, resp.StatusCode)
		}
		logging.Logger.Infof("Event ID: OBJECT_DELETED, Description: Deleted object %s", key)
		return nil
	})
}

// NopObjectStore is used when no object storage is configured.
type NopObjectStore struct{}

func (NopObjectStore) Delete(_ context.Context, key string) error {
	logging.Logger.Debugf("Event ID: OBJECT_DELETE_SKIPPED, Description: No object storage configured, skipping %s", key)
	return nil
}
