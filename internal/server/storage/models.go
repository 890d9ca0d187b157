package storage

import "time"

// ContentType describes how a share should be displayed.
type ContentType string

const (
	ContentText ContentType = "text"
	ContentCode ContentType = "code"
)

// ParseContentType maps unknown values to ContentText.
func ParseContentType(s string) ContentType {
	if ContentType(s) == ContentCode {
		return ContentCode
	}
	return ContentText
}

// UnlimitedViews marks a share without a view limit.
const UnlimitedViews = -1

// Share is a stored paste.
type Share struct {
	Code          string      `json:"code"`
	Content       string      `json:"content"`
	ContentType   ContentType `json:"contentType"`
	Language      string      `json:"language,omitempty"`
	PasswordHash  string      `json:"passwordHash,omitempty"` // empty when no password set
	MaxViews      int         `json:"maxViews"`
	Views         int         `json:"views"`
	OneTimeAccess bool        `json:"oneTimeAccess"`
	IsAccessed    bool        `json:"isAccessed"`
	CreatedAt     time.Time   `json:"createdAt"`
	ExpiresAt     time.Time   `json:"expiresAt"`
}

// HasPassword reports whether the share is password-protected.
func (s *Share) HasPassword() bool {
	return s.PasswordHash != ""
}

// IsExpired reports whether now is past the share's expiry.
func (s *Share) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ViewsExhausted reports whether a limited share has used all its views.
func (s *Share) ViewsExhausted() bool {
	return s.MaxViews > 0 && s.Views >= s.MaxViews
}

// Revision is the admission state of a share at the time it was read.
type Revision struct {
	Views      int
	IsAccessed bool
}

// Revision returns the share's current admission state.
func (s *Share) Revision() Revision {
	return Revision{Views: s.Views, IsAccessed: s.IsAccessed}
}

// Clone returns a copy that does not alias the receiver.
func (s *Share) Clone() *Share {
	c := *s
	return &c
}

// Stats holds aggregate share statistics.
type Stats struct {
	TotalShares  int64                 `json:"totalShares"`
	ActiveShares int64                 `json:"activeShares"`
	TotalViews   int64                 `json:"totalViews"`
	ContentTypes map[ContentType]int64 `json:"contentTypes"`
}

// AverageViews returns TotalViews / TotalShares, or 0 for an empty store.
func (s *Stats) AverageViews() float64 {
	if s.TotalShares == 0 {
		return 0
	}
	return float64(s.TotalViews) / float64(s.TotalShares)
}

// NewStats returns an empty aggregate.
func NewStats() *Stats {
	return &Stats{ContentTypes: make(map[ContentType]int64)}
}

// Add folds one share into the aggregate.
func (s *Stats) Add(share *Share, now time.Time) {
	s.TotalShares++
	if !share.IsExpired(now) {
		s.ActiveShares++
	}
	s.TotalViews += int64(share.Views)
	s.ContentTypes[share.ContentType]++
}
