package feed

import (
	"bytes"
	"encoding/json"
)

// Post is one object of the remote article listing.
type Post struct {
	ID       int64     `json:"id"`
	Title    Rendered  `json:"title"`
	Content  Rendered  `json:"content"`
	Date     string    `json:"date"`
	DateGMT  string    `json:"date_gmt"`
	Link     string    `json:"link"`
	Slug     string    `json:"slug"`
	Embedded *Embedded `json:"_embedded"`
}

type Embedded struct {
	FeaturedMedia []Media `json:"wp:featuredmedia"`
}

type Media struct {
	SourceURL   string   `json:"source_url"`
	AltText     string   `json:"alt_text"`
	Description Rendered `json:"description"`
}

// Rendered accepts either a plain string or an object carrying the
// rendered markup under "rendered".
type Rendered string

func (r *Rendered) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Rendered(s)
		return nil
	}

	var obj struct {
		Rendered string `json:"rendered"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = Rendered(obj.Rendered)
	return nil
}
