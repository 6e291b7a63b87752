package domain

import (
	"regexp"
	"strings"
	"time"
)

// WatchlistCapacity is the maximum number of channels that can be watched.
const WatchlistCapacity = 99

// DefaultChannel seeds a freshly created watch-list.
const DefaultChannel = "wiibleyde"

var loginPattern = regexp.MustCompile(`^[a-z0-9_]{1,25}$`)

// LiveStatus describes a channel that is currently broadcasting.
type LiveStatus struct {
	ChannelID    string    `json:"channel_id"`
	Login        string    `json:"login"`
	DisplayName  string    `json:"display_name"`
	Title        string    `json:"title"`
	CategoryID   string    `json:"category_id"`
	Category     string    `json:"category"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	Tags         []string  `json:"tags"`
	Language     string    `json:"language"`
	IsMature     bool      `json:"is_mature"`
	ThumbnailURL string    `json:"thumbnail_url"`
}

// Key returns the identity of the status within a poll cycle.
func (s LiveStatus) Key() string {
	if s.Login != "" {
		return NormalizeLogin(s.Login)
	}
	return NormalizeLogin(s.DisplayName)
}

// ProfileInfo is the static profile of a watched channel.
type ProfileInfo struct {
	ID              string    `json:"id"`
	Login           string    `json:"login"`
	DisplayName     string    `json:"display_name"`
	Type            string    `json:"type"`
	BroadcasterType string    `json:"broadcaster_type"`
	Description     string    `json:"description"`
	ProfileImageURL string    `json:"profile_image_url"`
	OfflineImageURL string    `json:"offline_image_url"`
	ViewCount       int       `json:"view_count"`
	CreatedAt       time.Time `json:"created_at"`
}

func (p ProfileInfo) Key() string {
	return NormalizeLogin(p.Login)
}

// NormalizeLogin lower-cases and trims a channel login.
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// ValidateLogin normalizes login and checks it is a well-formed channel name.
func ValidateLogin(login string) (string, error) {
	normalized := NormalizeLogin(login)
	if !loginPattern.MatchString(normalized) {
		return "", ErrInvalidChannel
	}
	return normalized, nil
}
