package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"my-page/internal/client"
	"my-page/internal/config"
	"my-page/internal/dashboard"
	"my-page/internal/logger"
	"my-page/internal/model"
)

type options struct {
	login     string
	logout    bool
	theme     bool
	refresh   bool
	cacheOnly bool
	news      string
	clear     string
	stats     bool
	backup    bool
	sync      bool
}

func main() {
	configFile := flag.String("config", "", "config file path")
	verbose := flag.Bool("v", false, "write logs to stdout")
	var opts options
	flag.StringVar(&opts.login, "login", "", "sign in as user:password")
	flag.BoolVar(&opts.logout, "logout", false, "sign out")
	flag.BoolVar(&opts.theme, "theme", false, "toggle light/dark theme")
	flag.BoolVar(&opts.refresh, "refresh", false, "refetch every widget and news feed")
	flag.BoolVar(&opts.cacheOnly, "cache-only", false, "render from cache only, no network")
	flag.StringVar(&opts.news, "news", "baidu", "news platform: baidu, weibo, bilibili, douyin")
	flag.StringVar(&opts.clear, "clear", "", "clear cache: <key>, content, news, all, date:<text>")
	flag.BoolVar(&opts.stats, "stats", false, "print server document stats")
	flag.BoolVar(&opts.backup, "backup", false, "snapshot server documents")
	flag.BoolVar(&opts.sync, "sync", false, "write this session's cache and settings back to the server")
	flag.Parse()

	cfg := config.Load(*configFile)
	if *verbose {
		defer logger.Init(cfg.Log).Close()
	} else {
		logger.Silence()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: cfg.Client.Timeout}
	dm := client.New(cfg.Client.BaseURL, httpClient)
	app := dashboard.NewAppState(dm)
	if err := app.Init(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "数据加载失败，请检查服务器连接:", err)
	}
	fetcher := dashboard.NewFetcher(app, httpClient, cfg.APIs)

	if err := run(ctx, os.Stdout, dm, app, fetcher, opts); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, dm *client.DataManager, app *dashboard.AppState, f *dashboard.Fetcher, opts options) error {
	if opts.logout {
		if err := app.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "已退出登录")
	}
	if opts.login != "" {
		username, password, ok := strings.Cut(opts.login, ":")
		if !ok || username == "" || password == "" {
			return errors.New("请输入用户名和密码 (-login user:password)")
		}
		resp, err := dm.Login(ctx, username, password)
		if err != nil {
			return fmt.Errorf("用户名或密码错误: %w", err)
		}
		if err := app.SetUser(ctx, resp.User); err != nil {
			return err
		}
		fmt.Fprintf(out, "欢迎回来，%s！\n", resp.User.Username)
	}
	if opts.theme {
		theme, err := app.ToggleTheme(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "theme:", theme)
	}
	if opts.clear != "" {
		if err := clearCache(ctx, out, app, opts.clear); err != nil {
			return err
		}
	}
	if opts.refresh {
		failed, err := f.RefreshAll(ctx)
		if err != nil {
			return err
		}
		for key, ferr := range failed {
			fmt.Fprintf(out, "刷新%s数据失败: %v\n", key, ferr)
		}
	}
	if opts.sync {
		if err := app.SaveToServer(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "已同步到服务器")
	}
	if opts.stats {
		stats, err := dm.Stats(ctx)
		if err != nil {
			return err
		}
		renderStats(out, stats)
	}
	if opts.backup {
		resp, err := dm.Backup(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s %v\n", resp.Message, resp.Timestamp, resp.Files)
	}

	platform, err := model.ParseNewsPlatform(opts.news)
	if err != nil {
		return err
	}
	renderHeader(out, app)
	fetch := dashboard.FetchOptions{CacheOnly: opts.cacheOnly}
	for _, kind := range model.AllContentKinds() {
		raw, err := f.FetchData(ctx, kind, fetch)
		renderContent(out, kind, raw, err)
	}
	items, err := f.FetchNews(ctx, platform, fetch)
	renderNews(out, platform, items, err)
	return nil
}

func clearCache(ctx context.Context, out io.Writer, app *dashboard.AppState, what string) error {
	var (
		n   int
		err error
	)
	switch {
	case what == "all":
		err = app.ClearAllServerData(ctx)
	case what == "content":
		n, err = app.ClearContentCache(ctx)
	case what == "news":
		n, err = app.ClearNewsCache(ctx)
	case strings.HasPrefix(what, "date:"):
		n, err = app.ClearCacheForDate(ctx, strings.TrimPrefix(what, "date:"))
	default:
		n, err = app.ClearSingleCache(ctx, what)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "已清除 %d 项缓存\n", n)
	return nil
}
