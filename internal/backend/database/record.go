package database

import "time"

// UploadRecord is one uploaded source image together with the click point and
// colour chosen for it. ResultRef stays nil until a painted result was written.
type UploadRecord struct {
	ID        string    `db:"id" json:"id"`
	SourceRef string    `db:"source_ref" json:"sourceRef"`
	ClickX    *int      `db:"click_x" json:"x,omitempty"`
	ClickY    *int      `db:"click_y" json:"y,omitempty"`
	Color     string    `db:"color" json:"color"`
	ResultRef *string   `db:"result_ref" json:"resultRef,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// HasClick reports whether the record carries a click point.
func (r *UploadRecord) HasClick() bool {
	return r.ClickX != nil && r.ClickY != nil
}
