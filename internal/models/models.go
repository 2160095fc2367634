package models

import "time"

// Clip is one uploaded video asset together with its metadata row.
type Clip struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Subtitle   string    `json:"subtitle"`
	Game       string    `json:"game"`
	Duration   string    `json:"duration"`
	FilePath   string    `json:"file_path"`
	OwnerID    int64     `json:"owner_id"`
	UploadDate time.Time `json:"upload_date"`
	VideoHash  string    `json:"video_hash"`
	IsPrivate  bool      `json:"is_private"`
	Views      int64     `json:"views"`
}

// VisibleTo reports whether a caller with the given privilege may read the clip.
func (c Clip) VisibleTo(privileged bool) bool {
	return privileged || !c.IsPrivate
}
