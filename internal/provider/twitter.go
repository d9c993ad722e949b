package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	config "github.com/postpulse/api/configs"
	"github.com/postpulse/api/internal/models"
)

const (
	twitterAPIURL    = "https://api.twitter.com/2"
	twitterUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
)

type twitterAdapter struct {
	cfg      config.Config
	client   *http.Client
	oauthCfg *oauth2.Config
}

func NewTwitterAdapter(cfg config.Config) Adapter {
	return &twitterAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.TwitterClientID,
			ClientSecret: cfg.TwitterClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  "https://api.twitter.com/2/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
}

type twitterErrorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

func (tw *twitterAdapter) classify(status int, body []byte) *Error {
	var er twitterErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Title != "" {
		kind := kindFromStatus(status)
		if strings.Contains(strings.ToLower(er.Title), "duplicate") ||
			strings.Contains(strings.ToLower(er.Detail), "violat") {
			kind = KindContentPolicy
		}
		return NewError(kind, "twitter: %s: %s", er.Title, er.Detail)
	}
	return NewError(kindFromStatus(status), "twitter: unexpected status %d", status)
}

func (tw *twitterAdapter) do(ctx context.Context, method, reqURL, accessToken, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := tw.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return NewError(KindTransient, "twitter: request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(KindTransient, "twitter: reading response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return tw.classify(resp.StatusCode, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("twitter: parsing response: %w", err)
		}
	}
	return nil
}

// uploadMedia downloads the asset and pushes it through the v1.1 upload
// endpoint, which is still the only way to attach media to a v2 tweet.
func (tw *twitterAdapter) uploadMedia(ctx context.Context, accessToken, mediaURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := tw.client.Do(req)
	if err != nil {
		return "", NewError(KindTransient, "twitter: fetching media: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", NewError(KindPermanent, "twitter: media url returned status %d", resp.StatusCode)
	}
	mediaBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewError(KindTransient, "twitter: reading media: %v", err)
	}

	form := url.Values{}
	form.Set("media_data", base64.StdEncoding.EncodeToString(mediaBytes))

	var uploaded struct {
		MediaIDString string `json:"media_id_string"`
	}
	err = tw.do(ctx, "POST", twitterUploadURL, accessToken,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &uploaded)
	if err != nil {
		return "", err
	}
	if uploaded.MediaIDString == "" {
		return "", NewError(KindPermanent, "twitter: no media id returned from upload")
	}
	return uploaded.MediaIDString, nil
}

func (tw *twitterAdapter) Publish(ctx context.Context, acc *models.SocialAccount, req PublishRequest) (*PublishResult, error) {
	text := req.Caption
	if len(req.Hashtags) > 0 {
		text = text + "\n\n" + strings.Join(req.Hashtags, " ")
	}

	payload := map[string]any{"text": text}
	if req.MediaURL != "" {
		mediaID, err := tw.uploadMedia(ctx, acc.AccessToken, req.MediaURL)
		if err != nil {
			return nil, err
		}
		payload["media"] = map[string]any{"media_ids": []string{mediaID}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err = tw.do(ctx, "POST", twitterAPIURL+"/tweets", acc.AccessToken,
		"application/json", bytes.NewBuffer(body), &created)
	if err != nil {
		return nil, err
	}
	if created.Data.ID == "" {
		return nil, NewError(KindPermanent, "twitter: no tweet id returned")
	}

	postURL := fmt.Sprintf("https://twitter.com/%s/status/%s", acc.AccountUsername, created.Data.ID)
	return &PublishResult{ProviderPostID: created.Data.ID, ProviderPostURL: postURL}, nil
}

func (tw *twitterAdapter) FetchMetrics(ctx context.Context, acc *models.SocialAccount, providerPostID string) (*models.EngagementMetrics, map[string]any, error) {
	var tweet struct {
		Data struct {
			PublicMetrics struct {
				LikeCount       int `json:"like_count"`
				ReplyCount      int `json:"reply_count"`
				RetweetCount    int `json:"retweet_count"`
				QuoteCount      int `json:"quote_count"`
				BookmarkCount   int `json:"bookmark_count"`
				ImpressionCount int `json:"impression_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}

	reqURL := fmt.Sprintf("%s/tweets/%s?tweet.fields=public_metrics", twitterAPIURL, providerPostID)
	if err := tw.do(ctx, "GET", reqURL, acc.AccessToken, "", nil, &tweet); err != nil {
		return nil, nil, err
	}

	pm := tweet.Data.PublicMetrics
	metrics := &models.EngagementMetrics{
		Likes:       pm.LikeCount,
		Comments:    pm.ReplyCount,
		Shares:      pm.RetweetCount + pm.QuoteCount,
		Saves:       pm.BookmarkCount,
		Impressions: pm.ImpressionCount,
		Reach:       pm.ImpressionCount,
	}
	if metrics.Impressions > 0 {
		interactions := metrics.Likes + metrics.Comments + metrics.Shares + metrics.Saves
		metrics.EngagementRate = float64(interactions) / float64(metrics.Impressions) * 100
	}

	extras := map[string]any{
		"retweet_count": pm.RetweetCount,
		"quote_count":   pm.QuoteCount,
	}
	return metrics, extras, nil
}

// RefreshToken exchanges the stored refresh token through the oauth2 token
// endpoint. Twitter rotates refresh tokens, so both values are replaced.
func (tw *twitterAdapter) RefreshToken(ctx context.Context, acc *models.SocialAccount) (*RefreshedToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, tw.client)

	source := tw.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: acc.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, NewError(KindAuthExpired, "twitter: token refresh failed: %v", err)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = acc.RefreshToken
	}
	return &RefreshedToken{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (tw *twitterAdapter) RecentPosts(ctx context.Context, acc *models.SocialAccount, n int) ([]RecentPost, error) {
	var tweets struct {
		Data []struct {
			ID            string    `json:"id"`
			Text          string    `json:"text"`
			CreatedAt     time.Time `json:"created_at"`
			PublicMetrics struct {
				LikeCount  int `json:"like_count"`
				ReplyCount int `json:"reply_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}

	reqURL := fmt.Sprintf("%s/users/%s/tweets?max_results=%d&tweet.fields=public_metrics,created_at",
		twitterAPIURL, acc.AccountID, n)
	if err := tw.do(ctx, "GET", reqURL, acc.AccessToken, "", nil, &tweets); err != nil {
		return nil, err
	}

	posts := make([]RecentPost, 0, len(tweets.Data))
	for _, t := range tweets.Data {
		posts = append(posts, RecentPost{
			ProviderPostID: t.ID,
			Caption:        t.Text,
			Likes:          t.PublicMetrics.LikeCount,
			Comments:       t.PublicMetrics.ReplyCount,
			PostedAt:       t.CreatedAt,
		})
	}
	return posts, nil
}
