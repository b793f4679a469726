package gofile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/synthlace/gofile-dav/internal/utils"
)

const (
	defaultAPIBase    = "https://api.gofile.io"
	defaultUploadURL  = "https://upload.gofile.io/uploadfile"
	defaultBypassBase = "https://gf.1drv.eu.org"
	refererURL        = "https://gofile.io/"

	// JS Number.MAX_SAFE_INTEGER: asks for everything in one page.
	defaultPageSize = "9007199254740991"
)

// The website token is scraped out of the public JS bundle; the bundle file
// name changes between deployments so both known names are tried.
var defaultWTBundleURLs = []string{
	"https://gofile.io/dist/js/global.js",
	"https://gofile.io/dist/js/config.js",
}

const wtMarker = `appdata.wt = "`

// Options configures a Client. The zero value is usable: a guest account is
// created on first use and all endpoints point at production.
type Options struct {
	// HTTPClient is the underlying transport. Defaults to a client with a
	// 30 second timeout.
	HTTPClient *http.Client

	// APIToken is a pre-supplied bearer token. When empty a guest account
	// is created on demand.
	APIToken string

	// PasswordHash is the hex-encoded SHA-256 digest of the folder
	// password, or empty when no password is configured.
	PasswordHash string

	// UseBypass enables rewriting download links through the bypass proxy.
	UseBypass bool

	// Retry overrides the API retry policy.
	Retry *utils.RetryConfig

	Logger zerolog.Logger

	// Endpoint overrides, used by tests.
	APIBase      string
	UploadURL    string
	BypassBase   string
	WTBundleURLs []string
}

// Client talks to the gofile API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
	retry      *utils.RetryConfig

	apiBase      string
	uploadURL    string
	bypassBase   string
	wtBundleURLs []string

	passwordHash string
	useBypass    bool

	sf    singleflight.Group
	mu    sync.RWMutex
	token string
	wt    string
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		httpClient:   opts.HTTPClient,
		logger:       opts.Logger,
		retry:        opts.Retry,
		apiBase:      opts.APIBase,
		uploadURL:    opts.UploadURL,
		bypassBase:   opts.BypassBase,
		wtBundleURLs: opts.WTBundleURLs,
		passwordHash: opts.PasswordHash,
		useBypass:    opts.UseBypass,
		token:        opts.APIToken,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.retry == nil {
		c.retry = utils.DefaultRetryConfig()
	}
	if c.apiBase == "" {
		c.apiBase = defaultAPIBase
	}
	if c.uploadURL == "" {
		c.uploadURL = defaultUploadURL
	}
	if c.bypassBase == "" {
		c.bypassBase = defaultBypassBase
	}
	if len(c.wtBundleURLs) == 0 {
		c.wtBundleURLs = defaultWTBundleURLs
	}
	return c
}

// Token returns the bearer token, creating a guest account on first use.
// Concurrent first callers share a single account creation; a failure is
// reported to all waiters and not remembered.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	v, err, _ := c.sf.Do("api-token", func() (interface{}, error) {
		c.mu.RLock()
		token := c.token
		c.mu.RUnlock()
		if token != "" {
			return token, nil
		}
		account, err := c.CreateGuestAccount(ctx)
		if err != nil {
			return nil, err
		}
		c.logger.Info().Str("account", account.ID).Msg("created guest account")
		c.mu.Lock()
		c.token = account.Token
		c.mu.Unlock()
		return account.Token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// websiteToken returns the wt query token, scraping it from the public JS
// bundle on first use. Immutable for the process lifetime once obtained.
func (c *Client) websiteToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	wt := c.wt
	c.mu.RUnlock()
	if wt != "" {
		return wt, nil
	}

	v, err, _ := c.sf.Do("website-token", func() (interface{}, error) {
		c.mu.RLock()
		wt := c.wt
		c.mu.RUnlock()
		if wt != "" {
			return wt, nil
		}
		wt, err := c.scrapeWebsiteToken(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.wt = wt
		c.mu.Unlock()
		return wt, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) scrapeWebsiteToken(ctx context.Context) (string, error) {
	var lastErr error = ErrParseToken
	for _, bundleURL := range c.wtBundleURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, bundleURL, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Referer", refererURL)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &transportError{err: err}
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &transportError{err: err}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = &StatusError{Code: resp.StatusCode}
			continue
		}
		_, rest, found := strings.Cut(string(body), wtMarker)
		if !found {
			lastErr = ErrParseToken
			continue
		}
		wt, _, found := strings.Cut(rest, `"`)
		if !found || wt == "" {
			lastErr = ErrParseToken
			continue
		}
		return wt, nil
	}
	return "", lastErr
}

// doJSON performs an API request wrapped in the retry policy, unwraps the
// response envelope and returns the raw data payload. The request body, if
// any, is marshalled once and replayed on every attempt.
func (c *Client) doJSON(ctx context.Context, method, url string, reqBody any, authed bool) (json.RawMessage, error) {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("gofile: encoding request body: %w", err)
		}
	}

	var token string
	if authed {
		var err error
		token, err = c.Token(ctx)
		if err != nil {
			return nil, err
		}
	}

	var data json.RawMessage
	err := utils.RetryWithBackoff(ctx, c.retry, isTransient, func() error {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Referer", refererURL)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if authed {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &transportError{err: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &transportError{err: err}
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &StatusError{Code: resp.StatusCode}
		}

		data, err = decodeEnvelope(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// CreateGuestAccount mints an anonymous account and returns its token.
func (c *Client) CreateGuestAccount(ctx context.Context) (*GuestAccount, error) {
	data, err := c.doJSON(ctx, http.MethodPost, c.apiBase+"/accounts", nil, false)
	if err != nil {
		return nil, fmt.Errorf("creating guest account: %w", err)
	}
	var account GuestAccount
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("decoding guest account: %w", err)
	}
	return &account, nil
}

// AccountInfo returns the account behind the current token.
func (c *Client) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	data, err := c.doJSON(ctx, http.MethodGet, c.apiBase+"/accounts/website", nil, true)
	if err != nil {
		return nil, fmt.Errorf("fetching account info: %w", err)
	}
	var info AccountInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decoding account info: %w", err)
	}
	return &info, nil
}

// CreateFolder creates a folder named name under the parent folder id.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (*FolderCreated, error) {
	body := createFolderRequest{FolderName: name, ParentFolderID: parentID}
	data, err := c.doJSON(ctx, http.MethodPost, c.apiBase+"/contents/createfolder", body, true)
	if err != nil {
		return nil, fmt.Errorf("creating folder %q: %w", name, err)
	}
	var created FolderCreated
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("decoding created folder: %w", err)
	}
	return &created, nil
}

// RenameContent updates the name attribute of the content with the given id.
func (c *Client) RenameContent(ctx context.Context, id, newName string) error {
	body := updateAttributeRequest{Attribute: "name", AttributeValue: newName}
	_, err := c.doJSON(ctx, http.MethodPut, c.apiBase+"/contents/"+id+"/update", body, true)
	if err != nil {
		return fmt.Errorf("renaming %s to %q: %w", id, newName, err)
	}
	return nil
}

// DeleteContents deletes the given content ids in a single batch call and
// returns the per-id outcomes.
func (c *Client) DeleteContents(ctx context.Context, ids []string) (map[string]DeleteResult, error) {
	if len(ids) == 0 {
		return map[string]DeleteResult{}, nil
	}
	body := deleteContentsRequest{ContentsID: strings.Join(ids, ",")}
	data, err := c.doJSON(ctx, http.MethodDelete, c.apiBase+"/contents", body, true)
	if err != nil {
		return nil, fmt.Errorf("deleting contents: %w", err)
	}
	results := make(map[string]DeleteResult)
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decoding delete results: %w", err)
	}
	return results, nil
}

// DownloadRequest builds a GET request for a download URL. The caller adds
// the Range header and executes it with Do. The bearer token is attached
// unless the link was rewritten by the bypass proxy, which must not see it.
func (c *Client) DownloadRequest(ctx context.Context, url string, bypassed bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", refererURL)
	if !bypassed {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// Do executes a request built by DownloadRequest on the client's transport.
// Download bodies are streamed, so no retry policy applies here.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}
