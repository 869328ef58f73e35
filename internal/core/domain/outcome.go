package domain

// PublishResult is the success side of one publish attempt.
type PublishResult struct {
	ExternalID string `json:"external_id"`
	Permalink  string `json:"permalink,omitempty"`
}

// PublishRequest is the generic input every platform publisher receives.
type PublishRequest struct {
	Connection *Connection
	Post       *Post

	// Message is the rendered post body.
	Message string

	// MediaURLs are resolved, publicly reachable image URLs in display
	// order. May be empty for text-only platforms.
	MediaURLs []string

	// AccessToken is the decrypted token for the connection.
	AccessToken string
}
