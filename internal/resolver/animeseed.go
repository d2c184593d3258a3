package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/seiyaku/anibridge/internal/fetch"
)

// seedAPIEndpoint is where animeseed pages post their player parameters.
const seedAPIEndpoint = "https://animeseed.tv/api/source"

// playerParams carries the obfuscated parameters embedded in the page.
// All five fields are required by the source API.
type playerParams struct {
	Cipher    string `json:"c"`
	Entry     string `json:"e"`
	Timestamp string `json:"t"`
	Page      string `json:"p"`
	Signature string `json:"s"`
}

func (p playerParams) complete() bool {
	return p.Cipher != "" && p.Entry != "" && p.Timestamp != "" && p.Page != "" && p.Signature != ""
}

func (p playerParams) form() url.Values {
	return url.Values{
		"c": {p.Cipher},
		"e": {p.Entry},
		"t": {p.Timestamp},
		"p": {p.Page},
		"s": {p.Signature},
	}
}

// extractAnimeseed handles the obfuscated-API site: the page embeds a
// video-player element whose data-video attribute is URL-encoded JSON with
// the parameters for the source API call.
func (r *resolver) extractAnimeseed(ctx context.Context, pageURL string, body []byte) (*ResolvedSource, error) {
	params, err := parsePlayerParams(body)
	if err != nil {
		return nil, err
	}

	mediaURL, cookies, err := r.callSourceAPI(ctx, pageURL, params)
	if err != nil {
		return nil, err
	}

	return &ResolvedSource{MediaURL: mediaURL, Cookies: cookies}, nil
}

// parsePlayerParams locates the inline player element and decodes its
// parameter attribute.
func parsePlayerParams(body []byte) (playerParams, error) {
	var params playerParams

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return params, errors.Wrap(err, "parse page HTML")
	}

	encoded, exists := doc.Find("div#video-player").Attr("data-video")
	if !exists {
		// Older pages hang the attribute off the video tag itself.
		encoded, exists = doc.Find("video[data-video]").Attr("data-video")
	}
	if !exists || strings.TrimSpace(encoded) == "" {
		return params, ErrPlayerNotFound
	}

	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return params, errors.Wrap(ErrIncompleteParams, err.Error())
	}
	if err := json.Unmarshal([]byte(decoded), &params); err != nil {
		return params, errors.Wrap(ErrIncompleteParams, err.Error())
	}
	if !params.complete() {
		return params, ErrIncompleteParams
	}
	return params, nil
}

// callSourceAPI posts the player parameters and extracts the media URL from
// the reply, trying each known reply schema in priority order. Session
// cookies set by the API must be replayed on the media fetch, so they are
// captured and returned alongside the URL.
func (r *resolver) callSourceAPI(ctx context.Context, pageURL string, params playerParams) (string, map[string]string, error) {
	form := params.form().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiEndpoint, strings.NewReader(form))
	if err != nil {
		return "", nil, &NetworkError{Op: "build request", URL: r.apiEndpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	fetch.BrowserHeaders(req, pageURL)

	resp, err := r.pages.Do(req)
	if err != nil {
		return "", nil, &NetworkError{Op: "call source API", URL: r.apiEndpoint, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			r.log.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, &NetworkError{Op: "call source API", URL: r.apiEndpoint, Err: errors.Errorf("status %s", resp.Status)}
	}

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, &NetworkError{Op: "read API reply", URL: r.apiEndpoint, Err: err}
	}

	mediaURL, schema, ok := extractSourceURL(reply)
	if !ok {
		return "", nil, ErrNoSource
	}
	r.log.Debug("source API reply parsed", "schema", schema)

	cookies := make(map[string]string)
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c.Value
	}
	return mediaURL, cookies, nil
}
