package jd

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

// FetchTimeout bounds a job posting download.
const FetchTimeout = 30 * time.Second

//nolint:gochecknoglobals // compiled once
var whitespacePattern = regexp.MustCompile(`\s+`)

// Fetch retrieves job description text from a file or URL.
func Fetch(ctx context.Context, input string) (content string, err error) {
	// Check if input is a URL
	parsedURL, urlErr := url.Parse(input)
	if urlErr == nil && (parsedURL.Scheme == "http" || parsedURL.Scheme == "https") {
		content, err = fetchFromURL(ctx, input)
		if err != nil {
			err = errors.Wrapf(err, "failed to fetch JD from URL: %s", input)
			return content, err
		}
		return content, err
	}

	content, err = fetchFromFile(input)
	if err != nil {
		err = errors.Wrapf(err, "failed to fetch JD from file: %s", input)
		return content, err
	}

	return content, err
}

// fetchFromFile reads job description from a file.
func fetchFromFile(path string) (content string, err error) {
	var data []byte
	data, err = os.ReadFile(path)
	if err != nil {
		err = errors.Wrapf(err, "failed to read file: %s", path)
		return content, err
	}

	content = string(data)
	if strings.TrimSpace(content) == "" {
		err = errors.New("file is empty")
		return content, err
	}

	if looksLikeHTML(content) {
		content = ExtractText(content)
	}

	return content, err
}

// fetchFromURL retrieves job description from a URL.
func fetchFromURL(ctx context.Context, urlStr string) (content string, err error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	var req *http.Request
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		err = errors.Wrap(err, "failed to create HTTP request")
		return content, err
	}

	req.Header.Set("User-Agent", "cv-tailor/1.0")

	var resp *http.Response
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		err = errors.Wrap(err, "HTTP request failed")
		return content, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = errors.Errorf("HTTP request failed with status: %d", resp.StatusCode)
		return content, err
	}

	var bodyBytes []byte
	bodyBytes, err = io.ReadAll(resp.Body)
	if err != nil {
		err = errors.Wrap(err, "failed to read response body")
		return content, err
	}

	content = ExtractText(string(bodyBytes))
	if content == "" {
		err = errors.New("fetched content is empty after processing")
		return content, err
	}

	return content, err
}

// ExtractText reduces an HTML page to its readable text blocks, dropping
// scripts, styles and page chrome.
func ExtractText(html string) (text string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		text = collapseWhitespace(html)
		return text
	}

	doc.Find("script, style, nav, header, footer, iframe, noscript").Remove()

	var blocks []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li").Each(func(_ int, s *goquery.Selection) {
		block := collapseWhitespace(s.Text())
		if block != "" {
			blocks = append(blocks, block)
		}
	})

	if len(blocks) > 0 {
		text = strings.Join(blocks, "\n")
		return text
	}

	text = collapseWhitespace(doc.Find("body").Text())
	return text
}

func looksLikeHTML(content string) (ok bool) {
	head := strings.ToLower(strings.TrimSpace(content))
	ok = strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
	return ok
}

func collapseWhitespace(text string) (collapsed string) {
	collapsed = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	return collapsed
}
