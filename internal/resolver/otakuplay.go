package resolver

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

// extractOtakuplay handles the plain-player site: the page carries an
// inline <video> element whose src points straight at the media.
func (r *resolver) extractOtakuplay(_ context.Context, _ string, body []byte) (*ResolvedSource, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "parse page HTML")
	}

	src, exists := doc.Find("video").Attr("src")
	if !exists {
		src, exists = doc.Find("video source").Attr("src")
	}
	if !exists || strings.TrimSpace(src) == "" {
		return nil, ErrPlayerNotFound
	}

	return &ResolvedSource{MediaURL: normalizeMediaURL(src)}, nil
}

// normalizeMediaURL upgrades protocol-relative URLs to https.
func normalizeMediaURL(src string) string {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return src
}
