package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/venuepost/publisher/internal/core/domain"
)

const (
	defaultGoogleBaseURL  = "https://mybusiness.googleapis.com/v4"
	defaultGoogleTokenURL = "https://oauth2.googleapis.com/token"
)

// TokenStore persists a renewed access token (already encrypted) for a
// connection.
type TokenStore interface {
	UpdateToken(ctx context.Context, connectionID string, encryptedToken string, expiry time.Time) error
}

// TokenCodec encrypts tokens before they are written back and decrypts
// stored ones before use.
type TokenCodec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(stored string) (string, error)
}

// GooglePublisher creates local posts on a Google Business Profile location.
// An expired access token is refreshed transparently before the post call,
// and the renewed token is persisted encrypted.
type GooglePublisher struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client
	tokens       TokenStore
	codec        TokenCodec
	log          *slog.Logger
}

// GoogleConfig configures the Google publisher.
type GoogleConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// NewGooglePublisher creates a Google Business Profile publisher.
func NewGooglePublisher(cfg GoogleConfig, tokens TokenStore, codec TokenCodec) *GooglePublisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGoogleBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultGoogleTokenURL
	}
	return &GooglePublisher{
		baseURL:      cfg.BaseURL,
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       newHTTPClient(),
		tokens:       tokens,
		codec:        codec,
		log:          slog.Default().With("component", "google_publisher"),
	}
}

type googleLocalPost struct {
	LanguageCode string        `json:"languageCode"`
	Summary      string        `json:"summary"`
	TopicType    string        `json:"topicType"`
	Media        []googleMedia `json:"media,omitempty"`
	CallToAction *googleCTA    `json:"callToAction,omitempty"`
	Event        *googleEvent  `json:"event,omitempty"`
	Offer        *googleOffer  `json:"offer,omitempty"`
}

type googleMedia struct {
	MediaFormat string `json:"mediaFormat"`
	SourceURL   string `json:"sourceUrl"`
}

type googleCTA struct {
	ActionType string `json:"actionType"`
	URL        string `json:"url,omitempty"`
}

type googleEvent struct {
	Title    string          `json:"title"`
	Schedule *googleSchedule `json:"schedule,omitempty"`
}

type googleSchedule struct {
	StartDate googleDate `json:"startDate"`
	StartTime googleTime `json:"startTime"`
	EndDate   googleDate `json:"endDate"`
	EndTime   googleTime `json:"endTime"`
}

type googleDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type googleTime struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

type googleOffer struct {
	TermsConditions string `json:"termsConditions,omitempty"`
}

type googlePostResponse struct {
	Name      string `json:"name"`
	SearchURL string `json:"searchUrl"`
	State     string `json:"state"`
}

type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Publish implements Publisher.
func (p *GooglePublisher) Publish(ctx context.Context, req *domain.PublishRequest) (*domain.PublishResult, error) {
	account, location, err := normalizedGoogleIDs(req.Connection)
	if err != nil {
		return nil, err
	}

	token := req.AccessToken
	if req.Connection.TokenExpired(time.Now()) {
		token, err = p.refreshToken(ctx, req.Connection)
		if err != nil {
			return nil, err
		}
	}

	body := p.buildLocalPost(req)
	endpoint := fmt.Sprintf("%s/accounts/%s/locations/%s/localPosts", p.baseURL, account, location)

	var resp googlePostResponse
	if err := postJSON(ctx, p.client, endpoint, token, body, &resp); err != nil {
		return nil, err
	}

	return &domain.PublishResult{
		ExternalID: resp.Name,
		Permalink:  resp.SearchURL,
	}, nil
}

// buildLocalPost maps the post's topic type onto the matching optional
// sub-objects. STANDARD carries neither event nor offer; EVENT carries the
// schedule; OFFER carries terms.
func (p *GooglePublisher) buildLocalPost(req *domain.PublishRequest) *googleLocalPost {
	post := req.Post

	topic := "STANDARD"
	if post.GoogleTopicType != nil && *post.GoogleTopicType != "" {
		topic = strings.ToUpper(*post.GoogleTopicType)
	}

	lp := &googleLocalPost{
		LanguageCode: "en",
		Summary:      req.Message,
		TopicType:    topic,
	}

	for _, mediaURL := range req.MediaURLs {
		lp.Media = append(lp.Media, googleMedia{MediaFormat: "PHOTO", SourceURL: mediaURL})
	}

	if post.GoogleCTAType != nil && *post.GoogleCTAType != "" {
		lp.CallToAction = &googleCTA{ActionType: strings.ToUpper(*post.GoogleCTAType)}
		if post.GoogleCTAURL != nil {
			lp.CallToAction.URL = *post.GoogleCTAURL
		}
	}

	if topic == "EVENT" || topic == "OFFER" {
		ev := &googleEvent{}
		if post.GoogleEventTitle != nil {
			ev.Title = *post.GoogleEventTitle
		}
		if post.GoogleEventStart != nil && post.GoogleEventEnd != nil {
			ev.Schedule = &googleSchedule{
				StartDate: dateOf(*post.GoogleEventStart),
				StartTime: timeOf(*post.GoogleEventStart),
				EndDate:   dateOf(*post.GoogleEventEnd),
				EndTime:   timeOf(*post.GoogleEventEnd),
			}
		}
		lp.Event = ev
	}

	if topic == "OFFER" && post.GoogleOfferTerms != nil {
		lp.Offer = &googleOffer{TermsConditions: *post.GoogleOfferTerms}
	}

	return lp
}

// refreshToken exchanges the refresh token and persists the renewed access
// token (encrypted) before the post call proceeds.
func (p *GooglePublisher) refreshToken(ctx context.Context, conn *domain.Connection) (string, error) {
	if conn.RefreshToken == nil || *conn.RefreshToken == "" {
		return "", fmt.Errorf("google connection %s has an expired token and no refresh token", conn.ID)
	}

	// The stored refresh token is encrypted at rest.
	refresh := *conn.RefreshToken
	if p.codec != nil {
		decrypted, err := p.codec.Decrypt(refresh)
		if err != nil {
			return "", fmt.Errorf("decrypt refresh token for connection %s: %w", conn.ID, err)
		}
		refresh = decrypted
	}

	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("refresh_token", refresh)
	form.Set("grant_type", "refresh_token")

	var resp googleTokenResponse
	if err := postForm(ctx, p.client, p.tokenURL, form, &resp); err != nil {
		return "", fmt.Errorf("refresh token exchange: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("refresh token exchange returned no access token")
	}

	expiry := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	if p.tokens != nil && p.codec != nil {
		encrypted, err := p.codec.Encrypt(resp.AccessToken)
		if err != nil {
			p.log.Warn("Failed to encrypt renewed token", "connection_id", conn.ID, "error", err)
		} else if err := p.tokens.UpdateToken(ctx, conn.ID, encrypted, expiry); err != nil {
			p.log.Warn("Failed to persist renewed token", "connection_id", conn.ID, "error", err)
		}
	}

	return resp.AccessToken, nil
}

// normalizedGoogleIDs strips the accounts/ and locations/ path prefixes that
// some stored connections carry.
func normalizedGoogleIDs(conn *domain.Connection) (string, string, error) {
	if conn.GoogleAccountID == nil || conn.GoogleLocationID == nil {
		return "", "", fmt.Errorf("google connection %s is missing account or location id", conn.ID)
	}
	account := strings.TrimPrefix(*conn.GoogleAccountID, "accounts/")
	location := strings.TrimPrefix(*conn.GoogleLocationID, "locations/")
	if account == "" || location == "" {
		return "", "", fmt.Errorf("google connection %s has empty account or location id", conn.ID)
	}
	return account, location, nil
}

func dateOf(t time.Time) googleDate {
	return googleDate{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

func timeOf(t time.Time) googleTime {
	return googleTime{Hours: t.Hour(), Minutes: t.Minute()}
}
