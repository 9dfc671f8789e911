package model

import (
	"bytes"
	"encoding/json"
)

// DailyData is the "daily-data" document: cache key → CacheEntry for widgets,
// cache key → bare JSON array for news.
type DailyData map[string]json.RawMessage

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

type SaveResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Revision  string `json:"revision,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Server    string `json:"server"`
}

type DocStats struct {
	Exists       bool   `json:"exists"`
	Size         int    `json:"size,omitempty"`
	Items        int    `json:"items"`
	LastModified string `json:"lastModified,omitempty"`
	Error        string `json:"error,omitempty"`
}

type BackupResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Files     []string `json:"files"`
}

// --- widget payloads ---

type CatImage struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type AnimeQuote struct {
	Quote     string `json:"quote"`
	Anime     string `json:"anime"`
	Character string `json:"character"`
}

type NasaPhoto struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	URL         string `json:"url"`
	HDURL       string `json:"hdurl"`
	Date        string `json:"date"`
	Copyright   string `json:"copyright"`
}

type HistoryToday struct {
	Title    string      `json:"title"`
	Year     LooseString `json:"year"`
	Month    LooseString `json:"month"`
	Day      LooseString `json:"day"`
	Keywords string      `json:"keywords"`
	URL      string      `json:"url"`
}

type Quote struct {
	Message string `json:"message"`
}

type NewsItem struct {
	Title string      `json:"title"`
	URL   string      `json:"url"`
	Desc  string      `json:"desc,omitempty"`
	Score LooseString `json:"score,omitempty"`
}

// LooseString accepts a JSON string, or keeps the literal text of any other
// JSON value. Upstream APIs are not consistent about numbers vs strings.
type LooseString string

func (s *LooseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = LooseString(v)
		return nil
	}
	*s = LooseString(b)
	return nil
}
