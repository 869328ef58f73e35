package domain

// Platform identifies a target social network.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformGoogle    Platform = "google_business"
	PlatformTwitter   Platform = "twitter" // legacy, publishing disabled
)

// AllPlatforms lists every platform the dispatch registry must cover.
var AllPlatforms = []Platform{
	PlatformFacebook,
	PlatformInstagram,
	PlatformGoogle,
	PlatformTwitter,
}

// ServiceName returns the circuit-breaker service key for the platform.
func (p Platform) ServiceName() string {
	return string(p)
}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformFacebook, PlatformInstagram, PlatformGoogle, PlatformTwitter:
		return true
	}
	return false
}
