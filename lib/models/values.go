package models

type Upload struct {
	VideoID    string
	Title      string
	Thumbnails Thumbnails
}

// Thumbnails holds the URLs the platform returned, empty when absent.
type Thumbnails struct {
	Default string
	Medium  string
	High    string
	Maxres  string
}

type LiveStatus struct {
	IsLive   bool
	StreamID string
	Title    string
	// ThumbnailTemplate contains {width} and {height} placeholders.
	ThumbnailTemplate string
}

// Channel is a resolved creator identity on a platform.
type Channel struct {
	Platform    Platform
	ID          string
	Name        string
	DisplayName string
}

type ChangeKind string

const (
	NewUpload ChangeKind = "upload"
	WentLive  ChangeKind = "live"
)

type ChangeEvent struct {
	Kind      ChangeKind
	Title     string
	URL       string
	Thumbnail string

	// RefID is the new marker: a video id for uploads, a stream id for lives.
	RefID string
}
