package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// refreshMargin is how long before the provider-reported expiry a cached
// token is considered stale.
const refreshMargin = 5 * time.Minute

// apiClient performs authenticated JSON calls against a provider admin API.
type apiClient struct {
	http        *http.Client
	credentials clientcredentials.Config
	cache       *TokenCache
	now         func() time.Time
}

func newAPIClient(httpClient *http.Client, creds clientcredentials.Config) *apiClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	creds.AuthStyle = oauth2.AuthStyleInParams
	return &apiClient{
		http:        httpClient,
		credentials: creds,
		cache:       &TokenCache{},
		now:         time.Now,
	}
}

func (c *apiClient) accessToken(ctx context.Context) (string, error) {
	if tok, ok := c.cache.Get(c.now()); ok {
		return tok, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.credentials.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("client credentials grant: %w", err)
	}

	var expiresAt time.Time
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry.Add(-refreshMargin)
	}
	c.cache.Set(tok.AccessToken, expiresAt)
	return tok.AccessToken, nil
}

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Method string
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Status)
}

func (c *apiClient) do(ctx context.Context, method, url string, body, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.cache.Clear()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: method, URL: url, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", url, err)
	}
	return nil
}
