package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/venuepost/publisher/internal/core/domain"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// FacebookPublisher posts to a Facebook Page via the Graph API.
//
// Single step: POST /{page_id}/feed for text posts, or /{page_id}/photos
// with a caption when media is present. One image per call; callers pass
// only the first.
type FacebookPublisher struct {
	baseURL string
	client  *http.Client
}

// NewFacebookPublisher creates a Facebook publisher. baseURL overrides the
// Graph API root for tests; empty uses the production endpoint.
func NewFacebookPublisher(baseURL string) *FacebookPublisher {
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	return &FacebookPublisher{
		baseURL: baseURL,
		client:  newHTTPClient(),
	}
}

type facebookPostResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// Publish implements Publisher.
func (p *FacebookPublisher) Publish(ctx context.Context, req *domain.PublishRequest) (*domain.PublishResult, error) {
	pageID := req.Connection.PageID
	if pageID == "" {
		return nil, fmt.Errorf("facebook connection %s has no page id", req.Connection.ID)
	}

	form := url.Values{}
	form.Set("access_token", req.AccessToken)

	var endpoint string
	if len(req.MediaURLs) > 0 {
		endpoint = fmt.Sprintf("%s/%s/photos", p.baseURL, pageID)
		form.Set("url", req.MediaURLs[0])
		// The photos edge names the text field caption; only feed posts
		// take message.
		form.Set("caption", req.Message)
	} else {
		endpoint = fmt.Sprintf("%s/%s/feed", p.baseURL, pageID)
		form.Set("message", req.Message)
	}

	var resp facebookPostResponse
	if err := postForm(ctx, p.client, endpoint, form, &resp); err != nil {
		return nil, err
	}

	// Photo responses carry post_id; feed responses carry id.
	externalID := resp.PostID
	if externalID == "" {
		externalID = resp.ID
	}
	return &domain.PublishResult{
		ExternalID: externalID,
		Permalink:  fmt.Sprintf("https://www.facebook.com/%s", externalID),
	}, nil
}
