package github

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"

	"github.com/visingers/visingers-sync/pkg/platforms"
)

const (
	DefaultAPIURL     = "https://api.github.com"
	DefaultGraphQLURL = "https://api.github.com/graphql"

	USER_AGENT = "ViSingersBot/1.0"
	PAGE_SIZE  = 100

	// SEARCH_RESULT_LIMIT is the number of search results GitHub serves.
	// Pages beyond it are answered with 422.
	SEARCH_RESULT_LIMIT = 1000
)

const treeQuery = `query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    object(expression: "HEAD:") {
      ... on Tree {
        entries {
          name
          type
          path
          object {
            ... on Blob {
              text
              byteSize
            }
          }
        }
      }
    }
  }
}`

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github: %s returned %d: %s", e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github: %s returned %d", e.URL, e.StatusCode)
}

// Client talks to the GitHub REST and GraphQL APIs.
type Client struct {
	apiURL     string
	graphqlURL string
	http       *retryablehttp.Client
}

var _ platforms.Hub = (*Client)(nil)

type Option func(*Client)

// WithBaseURLs points the client at another REST root and GraphQL endpoint.
func WithBaseURLs(apiURL, graphqlURL string) Option {
	return func(c *Client) {
		if apiURL != "" {
			c.apiURL = apiURL
		}
		if graphqlURL != "" {
			c.graphqlURL = graphqlURL
		}
	}
}

// WithRetryMax sets how many times a failed request is retried.
func WithRetryMax(n int) Option {
	return func(c *Client) { c.http.RetryMax = n }
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = min
		c.http.RetryWaitMax = max
	}
}

// NewClient builds a client. An empty token sends unauthenticated requests,
// which GraphQL rejects.
func NewClient(token string, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = 3
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if token != "" {
		retryClient.HTTPClient = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}

	c := &Client{
		apiURL:     DefaultAPIURL,
		graphqlURL: DefaultGraphQLURL,
		http:       retryClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) send(ctx context.Context, method, target string, body []byte) (string, error) {
	var raw interface{}
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, raw)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, URL: target, Message: gjson.GetBytes(b, "message").Str}
	}
	return string(b), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (string, error) {
	target := c.apiURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.send(ctx, http.MethodGet, target, nil)
}

func repoPath(owner, name string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
}

// SearchRepositories runs a topic search sorted by update time.
func (c *Client) SearchRepositories(ctx context.Context, topic string, page int) (platforms.SearchPage, error) {
	q := url.Values{}
	q.Set("q", "topic:"+topic)
	q.Set("sort", "updated")
	q.Set("order", "desc")
	q.Set("per_page", strconv.Itoa(PAGE_SIZE))
	q.Set("page", strconv.Itoa(page))

	body, err := c.get(ctx, "/search/repositories", q)
	if err != nil {
		return platforms.SearchPage{}, err
	}

	res := gjson.Parse(body)
	out := platforms.SearchPage{TotalCount: int(res.Get("total_count").Int()), Limit: SEARCH_RESULT_LIMIT}
	res.Get("items").ForEach(func(_, item gjson.Result) bool {
		repo := platforms.Repository{
			Owner:         item.Get("owner.login").Str,
			Name:          item.Get("name").Str,
			Homepage:      item.Get("homepage").Str,
			Stars:         int(item.Get("stargazers_count").Int()),
			DefaultBranch: item.Get("default_branch").Str,
			CreatedAt:     item.Get("created_at").Time(),
			UpdatedAt:     item.Get("updated_at").Time(),
			PushedAt:      item.Get("pushed_at").Time(),
		}
		for _, t := range item.Get("topics").Array() {
			repo.Topics = append(repo.Topics, t.Str)
		}
		out.Items = append(out.Items, repo)
		return true
	})
	return out, nil
}

// FetchTree returns the HEAD tree entries with inlined blob text in a single
// GraphQL query.
func (c *Client) FetchTree(ctx context.Context, owner, name string) ([]platforms.Entry, error) {
	payload, err := sjson.Set(`{}`, "query", treeQuery)
	if err != nil {
		return nil, err
	}
	if payload, err = sjson.Set(payload, "variables.owner", owner); err != nil {
		return nil, err
	}
	if payload, err = sjson.Set(payload, "variables.name", name); err != nil {
		return nil, err
	}

	body, err := c.send(ctx, http.MethodPost, c.graphqlURL, []byte(payload))
	if err != nil {
		return nil, err
	}

	if msg := gjson.Get(body, "errors.0.message"); msg.Exists() {
		return nil, fmt.Errorf("github graphql: %s", msg.Str)
	}
	repo := gjson.Get(body, "data.repository")
	if !repo.Exists() || repo.Type == gjson.Null {
		return nil, fmt.Errorf("github graphql: repository %s/%s not found", owner, name)
	}

	var entries []platforms.Entry
	repo.Get("object.entries").ForEach(func(_, e gjson.Result) bool {
		entry := platforms.Entry{
			Name: e.Get("name").Str,
			Type: e.Get("type").Str,
			Path: e.Get("path").Str,
		}
		if entry.Type == platforms.EntryBlob {
			entry.Size = e.Get("object.byteSize").Int()
			if text := e.Get("object.text"); text.Type == gjson.String {
				s := text.Str
				entry.Text = &s
			}
		}
		entries = append(entries, entry)
		return true
	})
	return entries, nil
}

// ListReleases returns every release of the repository, newest first.
func (c *Client) ListReleases(ctx context.Context, owner, name string) ([]platforms.Release, error) {
	var releases []platforms.Release
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("per_page", strconv.Itoa(PAGE_SIZE))
		q.Set("page", strconv.Itoa(page))
		body, err := c.get(ctx, repoPath(owner, name)+"/releases", q)
		if err != nil {
			return nil, err
		}

		count := int(gjson.Get(body, "#").Int())
		for i := 0; i < count; i++ {
			r := gjson.Get(body, strconv.Itoa(i))
			rel := platforms.Release{Name: r.Get("name").Str}
			if rel.Name == "" {
				rel.Name = r.Get("tag_name").Str
			}
			r.Get("assets").ForEach(func(_, a gjson.Result) bool {
				rel.Assets = append(rel.Assets, platforms.Asset{
					Name: a.Get("name").Str,
					Size: a.Get("size").Int(),
					URL:  a.Get("browser_download_url").Str,
				})
				return true
			})
			releases = append(releases, rel)
		}

		if count < PAGE_SIZE {
			break
		}
	}
	return releases, nil
}

func (c *Client) GetUser(ctx context.Context, login string) (platforms.User, error) {
	body, err := c.get(ctx, "/users/"+url.PathEscape(login), nil)
	if err != nil {
		return platforms.User{}, err
	}
	return platforms.User{
		Login:       gjson.Get(body, "login").Str,
		DisplayName: gjson.Get(body, "name").Str,
	}, nil
}

// ListDirectory lists the files of one repository directory.
func (c *Client) ListDirectory(ctx context.Context, owner, name, path string) ([]platforms.DirEntry, error) {
	body, err := c.get(ctx, repoPath(owner, name)+"/contents/"+url.PathEscape(path), nil)
	if err != nil {
		return nil, err
	}
	var out []platforms.DirEntry
	gjson.Parse(body).ForEach(func(_, f gjson.Result) bool {
		out = append(out, platforms.DirEntry{
			Name:        f.Get("name").Str,
			DownloadURL: f.Get("download_url").Str,
		})
		return true
	})
	return out, nil
}
