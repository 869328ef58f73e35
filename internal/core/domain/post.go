package domain

import (
	"time"
)

// Post is the logical content being published. The publishing core reads it
// and flips the is_publishing flag; everything else about posts belongs to
// the campaign side of the product.
type Post struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	Body     string `db:"body" json:"body"`

	// MediaURL is the legacy single-image column, used when no assets are
	// attached.
	MediaURL *string `db:"media_url" json:"media_url,omitempty"`

	// IsPublishing is the durable mutual-exclusion flag for the immediate
	// publish path. Set and cleared via conditional updates only.
	IsPublishing bool `db:"is_publishing" json:"is_publishing"`

	// ApprovalsRequired / ApprovalsGiven gate immediate publishing.
	ApprovalsRequired int `db:"approvals_required" json:"approvals_required"`
	ApprovalsGiven    int `db:"approvals_given" json:"approvals_given"`

	// Google Business Profile post options.
	GoogleTopicType  *string `db:"google_topic_type" json:"google_topic_type,omitempty"`
	GoogleCTAType    *string `db:"google_cta_type" json:"google_cta_type,omitempty"`
	GoogleCTAURL     *string `db:"google_cta_url" json:"google_cta_url,omitempty"`
	GoogleEventTitle *string `db:"google_event_title" json:"google_event_title,omitempty"`
	GoogleEventStart *time.Time `db:"google_event_start" json:"google_event_start,omitempty"`
	GoogleEventEnd   *time.Time `db:"google_event_end" json:"google_event_end,omitempty"`
	GoogleOfferTerms *string `db:"google_offer_terms" json:"google_offer_terms,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MediaAsset is an uploaded media file referenced by posts.
type MediaAsset struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	URL       string    `db:"url" json:"url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
