package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/venuepost/publisher/internal/core/domain"
	"github.com/venuepost/publisher/internal/publish/classify"
)

type igCacheSpy struct {
	mu     sync.Mutex
	cached map[string]string
}

func (s *igCacheSpy) UpdateIGAccountID(ctx context.Context, connectionID, igAccountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		s.cached = make(map[string]string)
	}
	s.cached[connectionID] = igAccountID
	return nil
}

func igConnection(igID string) *domain.Connection {
	conn := &domain.Connection{
		ID:       "conn-2",
		TenantID: "tenant-1",
		Platform: domain.PlatformInstagram,
		PageID:   "page-1",
	}
	if igID != "" {
		conn.IGAccountID = &igID
	}
	return conn
}

func TestInstagramRequiresImage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	pub := NewInstagramPublisher(srv.URL, nil)
	_, err := pub.Publish(context.Background(), &domain.PublishRequest{
		Connection:  igConnection("ig-1"),
		Message:     "no image",
		AccessToken: "tok",
	})

	var pe *classify.ProviderError
	if !errors.As(err, &pe) || pe.Code != classify.CodeImageRequired {
		t.Fatalf("expected IMAGE_REQUIRED, got %v", err)
	}
	if calls != 0 {
		t.Errorf("made %d network calls, want 0", calls)
	}
}

func TestInstagramSingleImageFlow(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		_ = r.ParseForm()
		switch {
		case strings.HasSuffix(r.URL.Path, "/media_publish"):
			if got := r.PostFormValue("creation_id"); got != "container-1" {
				t.Errorf("creation_id = %q", got)
			}
			w.Write([]byte(`{"id":"ig-post-1"}`))
		case strings.HasSuffix(r.URL.Path, "/media"):
			if got := r.PostFormValue("image_url"); got != "https://cdn.example.com/a.jpg" {
				t.Errorf("image_url = %q", got)
			}
			w.Write([]byte(`{"id":"container-1"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	pub := NewInstagramPublisher(srv.URL, nil)
	res, err := pub.Publish(context.Background(), &domain.PublishRequest{
		Connection:  igConnection("ig-1"),
		Message:     "brunch",
		MediaURLs:   []string{"https://cdn.example.com/a.jpg"},
		AccessToken: "tok",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.ExternalID != "ig-post-1" {
		t.Errorf("ExternalID = %q", res.ExternalID)
	}
	want := []string{"POST /ig-1/media", "POST /ig-1/media_publish"}
	if fmt.Sprint(paths) != fmt.Sprint(want) {
		t.Errorf("call sequence = %v, want %v", paths, want)
	}
}

func TestInstagramCarouselFlow(t *testing.T) {
	containers := 0
	var carouselChildren string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch {
		case strings.HasSuffix(r.URL.Path, "/media_publish"):
			w.Write([]byte(`{"id":"ig-post-2"}`))
		case r.PostFormValue("media_type") == "CAROUSEL":
			carouselChildren = r.PostFormValue("children")
			w.Write([]byte(`{"id":"carousel-1"}`))
		default:
			containers++
			if r.PostFormValue("is_carousel_item") != "true" {
				t.Errorf("child container missing is_carousel_item")
			}
			fmt.Fprintf(w, `{"id":"child-%d"}`, containers)
		}
	}))
	defer srv.Close()

	pub := NewInstagramPublisher(srv.URL, nil)
	res, err := pub.Publish(context.Background(), &domain.PublishRequest{
		Connection:  igConnection("ig-1"),
		Message:     "gallery",
		MediaURLs:   []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"},
		AccessToken: "tok",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if containers != 2 {
		t.Errorf("child containers = %d, want 2", containers)
	}
	if carouselChildren != "child-1,child-2" {
		t.Errorf("children = %q", carouselChildren)
	}
	if res.ExternalID != "ig-post-2" {
		t.Errorf("ExternalID = %q", res.ExternalID)
	}
}

func TestInstagramResolvesAndCachesAccountID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.Contains(r.URL.RawQuery, "instagram_business_account"):
			w.Write([]byte(`{"instagram_business_account":{"id":"ig-resolved"}}`))
		case strings.HasSuffix(r.URL.Path, "/media_publish"):
			w.Write([]byte(`{"id":"ig-post-3"}`))
		default:
			if !strings.HasPrefix(r.URL.Path, "/ig-resolved/") {
				t.Errorf("container call used wrong account: %s", r.URL.Path)
			}
			w.Write([]byte(`{"id":"container-9"}`))
		}
	}))
	defer srv.Close()

	cache := &igCacheSpy{}
	pub := NewInstagramPublisher(srv.URL, cache)
	_, err := pub.Publish(context.Background(), &domain.PublishRequest{
		Connection:  igConnection(""),
		Message:     "resolve me",
		MediaURLs:   []string{"https://cdn.example.com/a.jpg"},
		AccessToken: "tok",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if cache.cached["conn-2"] != "ig-resolved" {
		t.Errorf("resolved account id not cached: %v", cache.cached)
	}
}
