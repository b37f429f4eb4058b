package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/threadcraft/threadcraft/internal/common"
	"github.com/threadcraft/threadcraft/internal/server/models"
)

// DefaultAPIBaseURL is the Twitter API v2 endpoint.
const DefaultAPIBaseURL = "https://api.twitter.com"

// TwitterClient implements Client against the Twitter API v2. Writes and
// profile lookups run in user context signed with OAuth 1.0a; tweet lookups
// and conversation searches use the app bearer token.
type TwitterClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTwitterClient builds a client for the given API base URL. An empty
// baseURL selects the production endpoint.
func NewTwitterClient(baseURL string) *TwitterClient {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	return &TwitterClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *TwitterClient) userContextClient(ctx context.Context, creds *models.CredentialBundle) *http.Client {
	cfg := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	return cfg.Client(context.WithValue(ctx, oauth1.HTTPClient, c.httpClient), token)
}

type tweetData struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	AuthorID string `json:"author_id"`
}

func (c *TwitterClient) CreatePost(ctx context.Context, creds *models.CredentialBundle, text string) (string, error) {
	return c.publish(ctx, creds, map[string]any{"text": text})
}

func (c *TwitterClient) Reply(ctx context.Context, creds *models.CredentialBundle, text, inReplyToID string) (string, error) {
	return c.publish(ctx, creds, map[string]any{
		"text":  text,
		"reply": map[string]any{"in_reply_to_tweet_id": inReplyToID},
	})
}

func (c *TwitterClient) publish(ctx context.Context, creds *models.CredentialBundle, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("request serialization: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		Data tweetData `json:"data"`
	}
	if err := c.do(c.userContextClient(ctx, creds), req, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("%w: response without post id", common.ErrRemoteUnavailable)
	}
	return resp.Data.ID, nil
}

func (c *TwitterClient) GetPost(ctx context.Context, creds *models.CredentialBundle, id string) (*Post, error) {
	u := fmt.Sprintf("%s/2/tweets/%s?tweet.fields=author_id", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.BearerToken)

	var resp struct {
		Data tweetData `json:"data"`
	}
	if err := c.do(c.httpClient, req, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, common.ErrNotFound
	}
	return &Post{ID: resp.Data.ID, Text: resp.Data.Text, AuthorID: resp.Data.AuthorID}, nil
}

func (c *TwitterClient) ListReplies(ctx context.Context, creds *models.CredentialBundle, conversationID, username string) ([]Post, error) {
	q := url.Values{}
	q.Set("query", fmt.Sprintf("conversation_id:%s from:%s", conversationID, username))
	q.Set("max_results", strconv.Itoa(common.MaxRepliesToFetch))
	q.Set("tweet.fields", "author_id")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/2/tweets/search/recent?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.BearerToken)

	var resp struct {
		Data []tweetData `json:"data"`
	}
	if err := c.do(c.httpClient, req, &resp); err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(resp.Data))
	for _, d := range resp.Data {
		posts = append(posts, Post{ID: d.ID, Text: d.Text, AuthorID: d.AuthorID})
	}
	return posts, nil
}

func (c *TwitterClient) GetProfile(ctx context.Context, creds *models.CredentialBundle) (*models.Profile, error) {
	u := c.baseURL + "/2/users/me?user.fields=profile_image_url"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			ID              string `json:"id"`
			Username        string `json:"username"`
			Name            string `json:"name"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	if err := c.do(c.userContextClient(ctx, creds), req, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, fmt.Errorf("%w: response without user id", common.ErrRemoteUnavailable)
	}
	return &models.Profile{
		ID:       resp.Data.ID,
		Username: resp.Data.Username,
		Name:     resp.Data.Name,
		ImageURL: resp.Data.ProfileImageURL,
	}, nil
}

func (c *TwitterClient) do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapStatusError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", common.ErrRemoteUnavailable, err)
	}
	return nil
}

// mapStatusError translates platform HTTP failures into the shared error
// taxonomy. The response detail is attached for operator logs but callers
// match on the sentinel only.
func mapStatusError(status int, body []byte) error {
	detail := extractDetail(body)

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", common.ErrAuthInvalid, detail)
	case status == http.StatusForbidden:
		if strings.Contains(strings.ToLower(detail), "duplicate") {
			return fmt.Errorf("%w: %s", common.ErrDuplicatePost, detail)
		}
		return fmt.Errorf("%w: %s", common.ErrPermissionDenied, detail)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", common.ErrRateLimited, detail)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", common.ErrRemoteUnavailable, status, detail)
	}
}

func extractDetail(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Title != "" {
			return e.Title
		}
	}
	return strings.TrimSpace(string(body))
}
