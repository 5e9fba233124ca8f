package news

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pitchbook/internal/tools"
	"pitchbook/pkg/errors"
	"pitchbook/pkg/logger"
)

const (
	defaultBaseURL     = "https://money.rediff.com"
	defaultMaxArticles = 15
)

// Article is one scraped headline.
type Article struct {
	Title       string
	Description string
	Link        string
}

// Scraper fetches news headlines from the Rediff Money search page. Outbound
// requests are paced with a local limiter so bursts of tool calls do not
// hammer the site.
type Scraper struct {
	baseURL     string
	maxArticles int
	client      *http.Client
	limiter     *rate.Limiter
	log         *logger.Logger
}

// Config configures the scraper.
type Config struct {
	BaseURL     string
	MaxArticles int
	Timeout     time.Duration
	// RequestsPerMinute bounds outbound scrape requests.
	RequestsPerMinute int
}

func NewScraper(cfg Config) *Scraper {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 10
	}
	maxArticles := cfg.MaxArticles
	if maxArticles <= 0 {
		maxArticles = defaultMaxArticles
	}

	return &Scraper{
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxArticles: maxArticles,
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		log:         logger.Get().With("component", "news_scraper"),
	}
}

// Search fetches up to 15 articles matching the query.
func (s *Scraper) Search(ctx context.Context, query string) ([]Article, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/news/search?query=%s", s.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build news request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch news page")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrToolFailed, "news search returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read news page")
	}

	articles := parseArticles(string(body), s.baseURL, s.maxArticles)
	if len(articles) == 0 {
		return nil, errors.Wrapf(errors.ErrNoArticles, "no news articles found for %q", query)
	}

	s.log.Debugf("Scraped %d articles for %q", len(articles), query)
	return articles, nil
}

var (
	// Headlines live in <h2 class="copycell"> blocks; the description
	// follows in a sibling <div class="descript">.
	headlinePattern = regexp.MustCompile(`(?is)<h2[^>]*class="[^"]*copycell[^"]*"[^>]*>(.*?)</h2>(?:\s*<div[^>]*class="[^"]*descript[^"]*"[^>]*>(.*?)</div>)?`)
	linkPattern     = regexp.MustCompile(`(?is)<a[^>]*href="([^"]+)"`)
	tagPattern      = regexp.MustCompile(`(?s)<[^>]*>`)
	spacePattern    = regexp.MustCompile(`\s+`)
)

func parseArticles(html, baseURL string, limit int) []Article {
	matches := headlinePattern.FindAllStringSubmatch(html, limit)

	articles := make([]Article, 0, len(matches))
	for _, m := range matches {
		title := cleanText(m[1])
		if title == "" {
			continue
		}

		var link string
		if lm := linkPattern.FindStringSubmatch(m[1]); lm != nil {
			link = lm[1]
			if !strings.HasPrefix(link, "http") {
				link = baseURL + link
			}
		}

		articles = append(articles, Article{
			Title:       title,
			Description: cleanText(m[2]),
			Link:        link,
		})
	}
	return articles
}

func cleanText(fragment string) string {
	text := tagPattern.ReplaceAllString(fragment, " ")
	text = strings.NewReplacer("&amp;", "&", "&quot;", `"`, "&#39;", "'", "&lt;", "<", "&gt;", ">", "&nbsp;", " ").Replace(text)
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

// FormatArticles renders articles the way participants consume them.
func FormatArticles(query string, articles []Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d news articles for %q:\n", len(articles), query)
	for i, a := range articles {
		fmt.Fprintf(&b, "\n%d. %s", i+1, a.Title)
		if a.Description != "" {
			fmt.Fprintf(&b, "\n   Description: %s", a.Description)
		}
		if a.Link != "" {
			fmt.Fprintf(&b, "\n   Link: %s", a.Link)
		}
	}
	return b.String()
}

// NewTool exposes the scraper as a participant tool.
func NewTool(s *Scraper) tools.Tool {
	params := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search keyword or company name to find news articles about.",
			},
		},
		"required": []string{"query"},
	}

	return tools.New(
		"scrape_news_articles",
		"Scrape recent news articles for a company or keyword. Returns up to 15 headlines with descriptions and links.",
		params,
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			query, ok := tools.StringArg(args, "query")
			if !ok || query == "" {
				return "", errors.Wrap(errors.ErrInvalidInput, "query is required")
			}

			articles, err := s.Search(ctx, query)
			if errors.Is(err, errors.ErrNoArticles) {
				return fmt.Sprintf("No news articles found for %q.", query), nil
			}
			if err != nil {
				return "", err
			}
			return FormatArticles(query, articles), nil
		},
	)
}
