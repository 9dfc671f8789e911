package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownDocType  = errors.New("unknown document type")
	ErrUnknownContent  = errors.New("unknown content kind")
	ErrUnknownPlatform = errors.New("unknown news platform")
)

// DocType identifies one of the persisted documents. The set is closed:
// anything not listed here is never mapped to a file or a row.
type DocType int

const (
	DocUsers DocType = iota
	DocDailyData
	DocAdminData
	docTypeCount
)

var docTypeNames = [docTypeCount]string{
	DocUsers:     "users",
	DocDailyData: "daily-data",
	DocAdminData: "admin-data",
}

func AllDocTypes() []DocType {
	return []DocType{DocUsers, DocDailyData, DocAdminData}
}

func ParseDocType(s string) (DocType, error) {
	for i, name := range docTypeNames {
		if name == s {
			return DocType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDocType, s)
}

func (t DocType) String() string {
	if t < 0 || t >= docTypeCount {
		return "DocType(" + strconv.Itoa(int(t)) + ")"
	}
	return docTypeNames[t]
}

func (t DocType) FileName() string { return t.String() + ".json" }

// ServerDefault is what the store returns for a document that was never written.
func (t DocType) ServerDefault() json.RawMessage {
	return json.RawMessage(`{}`)
}

// ContentKind is a daily widget backed by one third-party endpoint.
type ContentKind int

const (
	ContentCat ContentKind = iota
	ContentAnime
	ContentNasa
	ContentHistory
	ContentQuote
	contentKindCount
)

var contentKindNames = [contentKindCount]string{
	ContentCat:     "cat",
	ContentAnime:   "anime",
	ContentNasa:    "nasa",
	ContentHistory: "history",
	ContentQuote:   "quote",
}

func AllContentKinds() []ContentKind {
	return []ContentKind{ContentCat, ContentAnime, ContentNasa, ContentHistory, ContentQuote}
}

func ParseContentKind(s string) (ContentKind, error) {
	for i, name := range contentKindNames {
		if name == s {
			return ContentKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownContent, s)
}

func (k ContentKind) String() string {
	if k < 0 || k >= contentKindCount {
		return "ContentKind(" + strconv.Itoa(int(k)) + ")"
	}
	return contentKindNames[k]
}

// CacheKey is the daily-data key for this widget.
func (k ContentKind) CacheKey() string { return k.String() }

type NewsPlatform int

const (
	NewsBaidu NewsPlatform = iota
	NewsWeibo
	NewsBilibili
	NewsDouyin
	newsPlatformCount
)

var newsPlatformNames = [newsPlatformCount]string{
	NewsBaidu:    "baidu",
	NewsWeibo:    "weibo",
	NewsBilibili: "bilibili",
	NewsDouyin:   "douyin",
}

const NewsKeyPrefix = "news_"

func AllNewsPlatforms() []NewsPlatform {
	return []NewsPlatform{NewsBaidu, NewsWeibo, NewsBilibili, NewsDouyin}
}

func ParseNewsPlatform(s string) (NewsPlatform, error) {
	s = strings.TrimPrefix(s, NewsKeyPrefix)
	for i, name := range newsPlatformNames {
		if name == s {
			return NewsPlatform(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

func (p NewsPlatform) String() string {
	if p < 0 || p >= newsPlatformCount {
		return "NewsPlatform(" + strconv.Itoa(int(p)) + ")"
	}
	return newsPlatformNames[p]
}

func (p NewsPlatform) CacheKey() string { return NewsKeyPrefix + p.String() }

// ValidCacheKeys lists every key the current daily-data layout uses.
func ValidCacheKeys() []string {
	keys := make([]string, 0, int(contentKindCount)+int(newsPlatformCount))
	for _, k := range AllContentKinds() {
		keys = append(keys, k.CacheKey())
	}
	for _, p := range AllNewsPlatforms() {
		keys = append(keys, p.CacheKey())
	}
	return keys
}
