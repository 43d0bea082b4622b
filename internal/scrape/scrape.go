// Package scrape 从公开主页提取站点名称与代表图片，用于一键填充资料。
// 尽力而为：单次请求、无重试，两项都提取不到才算失败。
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrNothingExtracted 表示页面里既没有名称也没有图片可用。
var ErrNothingExtracted = errors.New("neither site name nor image could be extracted")

// Result 是抓取结果。RecentPosts 目前不做提取，恒为空列表。
type Result struct {
	Name        string   `json:"name"`
	ImageURL    string   `json:"image_url"`
	RecentPosts []string `json:"recent_posts"`
}

const (
	defaultUserAgent = "ConectaBio/1.0 (+profile import)"
	maxBodyBytes     = 1 << 20 // 1MB
)

// Scraper 抓取并解析目标页面。
type Scraper struct {
	client    *http.Client
	userAgent string
}

// New 构造 Scraper。
func New() *Scraper {
	return &Scraper{
		client:    &http.Client{Timeout: 15 * time.Second},
		userAgent: defaultUserAgent,
	}
}

// Scrape 抓取 rawURL 并按选择器回退链提取名称与图片。
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	base, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", base.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %q: HTTP %d", base.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	name := extractName(doc)
	image := extractImage(doc, base)
	if name == "" && image == "" {
		return nil, ErrNothingExtracted
	}

	return &Result{
		Name:        name,
		ImageURL:    image,
		RecentPosts: []string{},
	}, nil
}

// extractName 回退链：og:site_name → class 启发式标题 → <title>。
func extractName(doc *html.Node) string {
	if v := metaContent(doc, "og:site_name"); v != "" {
		return v
	}
	if v := headingByClass(doc); v != "" {
		return v
	}
	return titleText(doc)
}

// extractImage 回退链：og:image → class 启发式 <img> → <link rel="icon">。
// 相对地址基于页面 URL 解析为绝对地址。
func extractImage(doc *html.Node, base *url.URL) string {
	if v := metaContent(doc, "og:image"); v != "" {
		return resolveURL(base, v)
	}
	if v := imageByClass(doc); v != "" {
		return resolveURL(base, v)
	}
	if v := iconHref(doc); v != "" {
		return resolveURL(base, v)
	}
	return ""
}

func metaContent(doc *html.Node, property string) string {
	var result string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if result != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			if attr(n, "property") == property || attr(n, "name") == property {
				result = strings.TrimSpace(attr(n, "content"))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return result
}

var nameClassHints = []string{"site-name", "profile-name", "display-name", "username"}

func headingByClass(doc *html.Node) string {
	var result string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if result != "" {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "h1" || n.Data == "h2" || n.Data == "span") {
			class := strings.ToLower(attr(n, "class"))
			for _, hint := range nameClassHints {
				if strings.Contains(class, hint) {
					result = strings.TrimSpace(textContent(n))
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return result
}

var imageClassHints = []string{"avatar", "profile", "logo"}

func imageByClass(doc *html.Node) string {
	var result string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if result != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "img" {
			class := strings.ToLower(attr(n, "class"))
			for _, hint := range imageClassHints {
				if strings.Contains(class, hint) {
					result = strings.TrimSpace(attr(n, "src"))
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return result
}

func iconHref(doc *html.Node) string {
	var result string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if result != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "link" {
			rel := strings.ToLower(attr(n, "rel"))
			if strings.Contains(rel, "icon") {
				result = strings.TrimSpace(attr(n, "href"))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return result
}

func titleText(doc *html.Node) string {
	var result string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if result != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			result = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return result
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func resolveURL(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}
