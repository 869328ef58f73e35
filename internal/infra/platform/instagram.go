package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/venuepost/publisher/internal/core/domain"
	"github.com/venuepost/publisher/internal/publish/classify"
)

// IGAccountCacher persists the resolved Instagram business account id back
// onto the connection so later publishes skip the lookup.
type IGAccountCacher interface {
	UpdateIGAccountID(ctx context.Context, connectionID string, igAccountID string) error
}

// InstagramPublisher posts via the Instagram Graph API container flow:
// resolve the business account from the connected Page, create a media
// container (single image or carousel), then publish the container. Each
// step is an independent network call and independently retryable.
type InstagramPublisher struct {
	baseURL string
	client  *http.Client
	cache   IGAccountCacher
}

// NewInstagramPublisher creates an Instagram publisher.
func NewInstagramPublisher(baseURL string, cache IGAccountCacher) *InstagramPublisher {
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	return &InstagramPublisher{
		baseURL: baseURL,
		client:  newHTTPClient(),
		cache:   cache,
	}
}

type igAccountResponse struct {
	InstagramBusinessAccount struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
}

type igContainerResponse struct {
	ID string `json:"id"`
}

// Publish implements Publisher.
func (p *InstagramPublisher) Publish(ctx context.Context, req *domain.PublishRequest) (*domain.PublishResult, error) {
	// Hard precondition: Instagram cannot publish without media.
	if len(req.MediaURLs) == 0 {
		return nil, classify.NewProviderError(classify.CodeImageRequired, domain.PlatformInstagram,
			"instagram publish requires at least one image")
	}

	igID, err := p.resolveAccountID(ctx, req)
	if err != nil {
		return nil, err
	}

	creationID, err := p.createContainer(ctx, igID, req)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("creation_id", creationID)
	form.Set("access_token", req.AccessToken)

	var resp igContainerResponse
	endpoint := fmt.Sprintf("%s/%s/media_publish", p.baseURL, igID)
	if err := postForm(ctx, p.client, endpoint, form, &resp); err != nil {
		return nil, err
	}

	return &domain.PublishResult{ExternalID: resp.ID}, nil
}

// resolveAccountID returns the Instagram business account id, preferring the
// value cached on the connection.
func (p *InstagramPublisher) resolveAccountID(ctx context.Context, req *domain.PublishRequest) (string, error) {
	if req.Connection.IGAccountID != nil && *req.Connection.IGAccountID != "" {
		return *req.Connection.IGAccountID, nil
	}

	endpoint := fmt.Sprintf("%s/%s?fields=instagram_business_account&access_token=%s",
		p.baseURL, req.Connection.PageID, url.QueryEscape(req.AccessToken))

	var resp igAccountResponse
	if err := getJSON(ctx, p.client, endpoint, &resp); err != nil {
		return "", err
	}
	igID := resp.InstagramBusinessAccount.ID
	if igID == "" {
		return "", fmt.Errorf("page %s has no linked instagram business account", req.Connection.PageID)
	}

	if p.cache != nil {
		// Best effort; a failed cache write just means another lookup later.
		_ = p.cache.UpdateIGAccountID(ctx, req.Connection.ID, igID)
	}
	return igID, nil
}

// createContainer creates the media container and returns its creation id.
// Multiple images use the CAROUSEL flow with per-item child containers.
func (p *InstagramPublisher) createContainer(ctx context.Context, igID string, req *domain.PublishRequest) (string, error) {
	mediaEndpoint := fmt.Sprintf("%s/%s/media", p.baseURL, igID)

	if len(req.MediaURLs) == 1 {
		form := url.Values{}
		form.Set("image_url", req.MediaURLs[0])
		form.Set("caption", req.Message)
		form.Set("access_token", req.AccessToken)

		var resp igContainerResponse
		if err := postForm(ctx, p.client, mediaEndpoint, form, &resp); err != nil {
			return "", err
		}
		return resp.ID, nil
	}

	children := make([]string, 0, len(req.MediaURLs))
	for _, mediaURL := range req.MediaURLs {
		form := url.Values{}
		form.Set("image_url", mediaURL)
		form.Set("is_carousel_item", "true")
		form.Set("access_token", req.AccessToken)

		var resp igContainerResponse
		if err := postForm(ctx, p.client, mediaEndpoint, form, &resp); err != nil {
			return "", err
		}
		children = append(children, resp.ID)
	}

	form := url.Values{}
	form.Set("media_type", "CAROUSEL")
	form.Set("caption", req.Message)
	form.Set("access_token", req.AccessToken)
	form.Set("children", strings.Join(children, ","))

	var resp igContainerResponse
	if err := postForm(ctx, p.client, mediaEndpoint, form, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
