package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/postpulse/api/configs"
	"github.com/postpulse/api/internal/models"
)

const instagramGraphURL = "https://graph.instagram.com/v21.0"

type instagramAdapter struct {
	cfg    config.Config
	client *http.Client
}

func NewInstagramAdapter(cfg config.Config) Adapter {
	return &instagramAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type instagramErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		IsTransient  bool   `json:"is_transient"`
	} `json:"error"`
}

// classify maps a Graph API error body to an adapter error kind.
func (ig *instagramAdapter) classify(status int, body []byte) *Error {
	var er instagramErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Code != 0 {
		kind := KindPermanent
		switch {
		case er.Error.IsTransient:
			kind = KindTransient
		case er.Error.Code == 4 || er.Error.Code == 17 || er.Error.Code == 32 || er.Error.Code == 613:
			kind = KindRateLimited
		case er.Error.Code == 190 || er.Error.Code == 102:
			kind = KindAuthExpired
		case er.Error.Code == 368 || er.Error.Code == 10:
			kind = KindContentPolicy
		default:
			kind = kindFromStatus(status)
		}
		return NewError(kind, "instagram: %s (code %d)", er.Error.Message, er.Error.Code)
	}
	return NewError(kindFromStatus(status), "instagram: unexpected status %d", status)
}

func (ig *instagramAdapter) postJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ig.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return NewError(KindTransient, "instagram: request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(KindTransient, "instagram: reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ig.classify(resp.StatusCode, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("instagram: parsing response: %w", err)
		}
	}
	return nil
}

func (ig *instagramAdapter) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}

	resp, err := ig.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return NewError(KindTransient, "instagram: request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(KindTransient, "instagram: reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ig.classify(resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("instagram: parsing response: %w", err)
	}
	return nil
}

// Publish creates a media container and publishes it, the two-step flow the
// Graph API requires for both images and reels.
func (ig *instagramAdapter) Publish(ctx context.Context, acc *models.SocialAccount, req PublishRequest) (*PublishResult, error) {
	caption := req.Caption
	if len(req.Hashtags) > 0 {
		caption = caption + "\n\n" + strings.Join(req.Hashtags, " ")
	}

	container := map[string]any{
		"caption":      caption,
		"access_token": acc.AccessToken,
	}
	switch req.MediaType {
	case models.MediaTypeVideo, models.MediaTypeReel:
		container["media_type"] = "REELS"
		container["video_url"] = req.MediaURL
	default:
		container["image_url"] = req.MediaURL
	}

	var created struct {
		ID string `json:"id"`
	}
	containerURL := fmt.Sprintf("%s/%s/media", instagramGraphURL, acc.AccountID)
	if err := ig.postJSON(ctx, containerURL, container, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, NewError(KindPermanent, "instagram: no media container id returned")
	}

	var published struct {
		ID string `json:"id"`
	}
	publishURL := fmt.Sprintf("%s/%s/media_publish", instagramGraphURL, acc.AccountID)
	payload := map[string]string{
		"creation_id":  created.ID,
		"access_token": acc.AccessToken,
	}
	if err := ig.postJSON(ctx, publishURL, payload, &published); err != nil {
		return nil, err
	}
	if published.ID == "" {
		return nil, NewError(KindPermanent, "instagram: no media id returned on publish")
	}

	var media struct {
		Permalink string `json:"permalink"`
	}
	permalinkURL := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s",
		instagramGraphURL, published.ID, url.QueryEscape(acc.AccessToken))
	if err := ig.getJSON(ctx, permalinkURL, &media); err != nil {
		// The post went out; a missing permalink is not a publish failure.
		slog.Warn("instagram: permalink lookup failed", "media_id", published.ID, "error", err)
	}

	return &PublishResult{ProviderPostID: published.ID, ProviderPostURL: media.Permalink}, nil
}

func (ig *instagramAdapter) FetchMetrics(ctx context.Context, acc *models.SocialAccount, providerPostID string) (*models.EngagementMetrics, map[string]any, error) {
	var insights struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value int `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}

	insightsURL := fmt.Sprintf("%s/%s/insights?metric=likes,comments,shares,saved,impressions,reach&access_token=%s",
		instagramGraphURL, providerPostID, url.QueryEscape(acc.AccessToken))
	if err := ig.getJSON(ctx, insightsURL, &insights); err != nil {
		return nil, nil, err
	}

	metrics := &models.EngagementMetrics{}
	extras := make(map[string]any)
	for _, d := range insights.Data {
		if len(d.Values) == 0 {
			continue
		}
		v := d.Values[0].Value
		switch d.Name {
		case "likes":
			metrics.Likes = v
		case "comments":
			metrics.Comments = v
		case "shares":
			metrics.Shares = v
		case "saved":
			metrics.Saves = v
		case "impressions":
			metrics.Impressions = v
		case "reach":
			metrics.Reach = v
		default:
			extras[d.Name] = v
		}
	}
	if metrics.Reach > 0 {
		interactions := metrics.Likes + metrics.Comments + metrics.Shares + metrics.Saves
		metrics.EngagementRate = float64(interactions) / float64(metrics.Reach) * 100
	}

	return metrics, extras, nil
}

// RefreshToken extends a long-lived token via the refresh endpoint, as the
// Instagram Basic Display flow requires before expiry.
func (ig *instagramAdapter) RefreshToken(ctx context.Context, acc *models.SocialAccount) (*RefreshedToken, error) {
	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}

	refreshURL := fmt.Sprintf("https://graph.instagram.com/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		url.QueryEscape(acc.RefreshToken))
	if err := ig.getJSON(ctx, refreshURL, &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, NewError(KindAuthExpired, "instagram: refresh returned no token")
	}

	return &RefreshedToken{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

func (ig *instagramAdapter) RecentPosts(ctx context.Context, acc *models.SocialAccount, n int) ([]RecentPost, error) {
	var media struct {
		Data []struct {
			ID            string    `json:"id"`
			Caption       string    `json:"caption"`
			LikeCount     int       `json:"like_count"`
			CommentsCount int       `json:"comments_count"`
			Timestamp     time.Time `json:"timestamp"`
		} `json:"data"`
	}

	mediaURL := fmt.Sprintf("%s/%s/media?fields=id,caption,like_count,comments_count,timestamp&limit=%d&access_token=%s",
		instagramGraphURL, acc.AccountID, n, url.QueryEscape(acc.AccessToken))
	if err := ig.getJSON(ctx, mediaURL, &media); err != nil {
		return nil, err
	}

	posts := make([]RecentPost, 0, len(media.Data))
	for _, m := range media.Data {
		posts = append(posts, RecentPost{
			ProviderPostID: m.ID,
			Caption:        m.Caption,
			Likes:          m.LikeCount,
			Comments:       m.CommentsCount,
			PostedAt:       m.Timestamp,
		})
	}
	return posts, nil
}
