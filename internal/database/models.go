package database

// MediaPart is one file backing a Plex library item.
type MediaPart struct {
	ID         int64  `json:"id"`
	File       string `json:"file"`
	DurationMs int64  `json:"durationMs"`
}

// Stats describes the open library database connection.
type Stats struct {
	Path            string `json:"path"`
	OpenConnections int    `json:"openConnections"`
	InUse           int    `json:"inUse"`
}
