package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"my-page/internal/dashboard"
	"my-page/internal/model"
)

const maxNews = 10

var weekdays = [...]string{"星期日", "星期一", "星期二", "星期三", "星期四", "星期五", "星期六"}

func renderHeader(w io.Writer, app *dashboard.AppState) {
	now := time.Now()
	fmt.Fprintf(w, "%d年%d月%d日 %s %s\n", now.Year(), int(now.Month()), now.Day(), weekdays[now.Weekday()], now.Format("15:04:05"))
	name := "未登录"
	if u := app.User(); u != nil {
		name = u.Username
		if u.IsAdmin() {
			name += " (admin)"
		}
	}
	fmt.Fprintf(w, "用户: %s  主题: %s\n\n", name, app.Theme())
}

func renderContent(w io.Writer, kind model.ContentKind, raw json.RawMessage, err error) {
	fmt.Fprintf(w, "[%s] ", kind)
	if err != nil {
		if errors.Is(err, dashboard.ErrNoCacheAvailable) {
			fmt.Fprintln(w, "无本地数据")
		} else {
			fmt.Fprintln(w, "加载失败:", err)
		}
		return
	}

	var line string
	switch kind {
	case model.ContentCat:
		var v model.CatImage
		if err = json.Unmarshal(raw, &v); err == nil {
			line = fmt.Sprintf("%s (%dx%d)", v.Image, v.Width, v.Height)
		}
	case model.ContentAnime:
		var v model.AnimeQuote
		if err = json.Unmarshal(raw, &v); err == nil {
			line = fmt.Sprintf("「%s」 —— %s《%s》", v.Quote, v.Character, v.Anime)
		}
	case model.ContentNasa:
		var v model.NasaPhoto
		if err = json.Unmarshal(raw, &v); err == nil {
			line = fmt.Sprintf("%s (%s) %s", v.Title, v.Date, v.URL)
		}
	case model.ContentHistory:
		var v model.HistoryToday
		if err = json.Unmarshal(raw, &v); err == nil {
			line = fmt.Sprintf("%s年%s月%s日 %s", v.Year, v.Month, v.Day, v.Title)
		}
	case model.ContentQuote:
		var v model.Quote
		if err = json.Unmarshal(raw, &v); err == nil {
			line = v.Message
		}
	default:
		line = string(raw)
	}
	// content cached by another client may not fit the current shape
	if err != nil {
		line = string(raw)
	}
	fmt.Fprintln(w, line)
}

func renderNews(w io.Writer, p model.NewsPlatform, raw json.RawMessage, err error) {
	fmt.Fprintf(w, "\n== %s 热榜 ==\n", p)
	if err != nil {
		if errors.Is(err, dashboard.ErrNoCacheAvailable) {
			fmt.Fprintln(w, "无本地新闻数据")
		} else {
			fmt.Fprintln(w, "加载新闻失败:", err)
		}
		return
	}
	var items []model.NewsItem
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		fmt.Fprintln(w, "暂无新闻")
		return
	}
	for i, it := range items {
		if i == maxNews {
			break
		}
		fmt.Fprintf(w, "%2d. %s\n", i+1, it.Title)
	}
}

func renderStats(w io.Writer, stats map[string]model.DocStats) {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := stats[name]
		if !s.Exists {
			fmt.Fprintf(w, "%-12s missing: %s\n", name, s.Error)
			continue
		}
		fmt.Fprintf(w, "%-12s items=%d size=%d modified=%s\n", name, s.Items, s.Size, s.LastModified)
	}
}
