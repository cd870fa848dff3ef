package domain

// BibleBook is one book in a version's structure.
type BibleBook struct {
	Name     string `json:"name"`
	Abbrev   string `json:"abbrev"` // ISO-style abbreviation, e.g. "JER"
	Chapters int    `json:"chapters"`
}

// BibleVersion is the downloaded book/chapter structure for one
// language-version pair. Immutable once stored; replaced only by
// re-download.
type BibleVersion struct {
	ID           string      `json:"id"` // "{language}-{version}", e.g. "pt-ara"
	Language     string      `json:"language"`
	Version      string      `json:"version"`
	FullName     string      `json:"fullName"`
	Books        []BibleBook `json:"books"`
	DownloadedAt int64       `json:"downloadedAt"`
	SizeInBytes  int64       `json:"sizeInBytes,omitempty"`
}
