package bili

import (
	"encoding/json"
	"strconv"
)

// Count is a view/comment counter the API returns either as a JSON
// number or a locale-formatted string ("3.5万"). The raw form is kept for
// display; Int64 parses it for ranking.
type Count string

func (c *Count) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Count(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = Count(strconv.FormatInt(int64(f), 10))
	return nil
}

func (c Count) Int64() int64 { return ParseCount(string(c)) }

func (c Count) String() string {
	if c == "" {
		return "0"
	}
	return string(c)
}

// User is a normalized creator record.
type User struct {
	MID      string `json:"mid"`
	Name     string `json:"name"`
	Sign     string `json:"sign,omitempty"`
	Level    int    `json:"level,omitempty"`
	Face     string `json:"face,omitempty"`
	Follower int64  `json:"follower"`
}

// Video is a normalized video record. It is rebuilt on every fetch and
// never persisted whole; only BVID ends up in the seen markers.
type Video struct {
	BVID        string `json:"bvid"`
	AID         int64  `json:"aid,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Pic         string `json:"pic,omitempty"`
	PubDate     int64  `json:"pubdate"`
	Length      string `json:"length,omitempty"`
	Play        Count  `json:"play"`
	Comment     Count  `json:"comment"`
	MID         string `json:"mid"`
	Author      string `json:"author"`
	URL         string `json:"url,omitempty"`

	// Follower is the owner's follower count, filled during keyword
	// digests only.
	Follower int64 `json:"follower,omitempty"`
}

// videoURL derives the canonical watch URL; empty when there is no bvid.
func videoURL(bvid string) string {
	if bvid == "" {
		return ""
	}
	return "https://www.bilibili.com/video/" + bvid
}
