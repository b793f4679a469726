package gofile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const bypassMaxRetries = 10

// Proxy hosts the bypass service is known to hand out while they are down.
// A listing whose first proxy link points there is rerolled.
var brokenBypassProxyHosts = []string{"gf.cybar.xyz"}

// BypassFiles lists a public folder through the bypass service, which
// returns alternate proxy download links for its files. The service load
// balances over proxy hosts of varying health, so a listing that landed on
// a known-broken host is requested again, up to bypassMaxRetries requests
// in all. A 502 means
// the folder is unknown to the service and maps to ErrNotFound.
func (c *Client) BypassFiles(ctx context.Context, folderCode string) ([]BypassFile, error) {
	endpoint := c.bypassBase + "/api/files?" + url.Values{"folderId": {folderCode}}.Encode()

	for attempt := 0; attempt < bypassMaxRetries; attempt++ {
		files, retry, err := c.fetchBypassFiles(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		if retry {
			c.logger.Debug().
				Str("folder", folderCode).
				Int("attempt", attempt+1).
				Msg("bypass listing landed on a broken proxy host, retrying")
			continue
		}
		return files, nil
	}
	return nil, fmt.Errorf("gofile: max retries reached while fetching bypass files for folder %s", folderCode)
}

func (c *Client) fetchBypassFiles(ctx context.Context, endpoint string) (files []BypassFile, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadGateway {
		return nil, false, ErrNotFound
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, &transportError{err: err}
	}
	data, err := decodeEnvelope(raw)
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, false, fmt.Errorf("gofile: decoding bypass files: %w", err)
	}

	if len(files) > 0 && isBrokenProxyLink(files[0].ProxyLink) {
		return nil, true, nil
	}
	return files, false, nil
}

func isBrokenProxyLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, broken := range brokenBypassProxyHosts {
		if host == broken {
			return true
		}
	}
	return false
}
