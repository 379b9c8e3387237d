package extractor

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/isbn-service/internal/entity"
	"github.com/user/isbn-service/pkg/utils"
)

type options struct {
	pageURL *url.URL
}

// Option customises ExtractBookRecord.
type Option func(*options)

// WithPageURL resolves a relative cover image src against the URL the page was served from.
func WithPageURL(u *url.URL) Option { return func(o *options) { o.pageURL = u } }

// ExtractBookRecord parses an ISBN search result page and builds the record
// stored under isbn. It performs no I/O.
//
// The title, author and description regions are required; the image region
// is optional and leaves CoverURL empty when absent.
func ExtractBookRecord(isbn string, markup []byte, opts ...Option) (*entity.BookRecord, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, &ExtractionError{Cause: CauseUnparsableMarkup, Detail: err.Error()}
	}

	title, err := regionText(doc, titleSelector)
	if err != nil {
		return nil, err
	}

	authorText, err := regionText(doc, authorSelector)
	if err != nil {
		return nil, err
	}
	author, err := ParseAuthor(authorText)
	if err != nil {
		return nil, err
	}

	descText, err := regionText(doc, descriptionSelector)
	if err != nil {
		return nil, err
	}
	pubDate, binding, err := ParseDescription(descText)
	if err != nil {
		return nil, err
	}

	return &entity.BookRecord{
		ISBN:     isbn,
		Title:    title,
		Author:   author,
		PubDate:  pubDate,
		Binding:  binding,
		CoverURL: UpscaleCoverURL(coverSource(doc, o.pageURL)),
	}, nil
}

func regionText(doc *goquery.Document, selector string) (string, error) {
	region := doc.Find(selector).First()
	if region.Length() == 0 {
		return "", &ExtractionError{Cause: CauseRegionMissing, Region: selector}
	}
	return region.Text(), nil
}

// coverSource returns the src of the first image in the image region, or ""
// when the region, the image or its src is missing.
func coverSource(doc *goquery.Document, pageURL *url.URL) string {
	src, _ := doc.Find(imageSelector).First().Find("img").First().Attr("src")
	src = strings.TrimSpace(src)
	if src == "" || pageURL == nil {
		return src
	}
	abs, err := utils.ToAbsoluteURL(pageURL, src)
	if err != nil {
		// keep the src as scraped
		return src
	}
	return abs
}

// ParseAuthor takes everything after the first "by" in text, e.g.
// "A Novel by Jane Doe" -> "Jane Doe".
func ParseAuthor(text string) (string, error) {
	_, after, found := strings.Cut(text, authorSeparator)
	if !found {
		return "", &ExtractionError{Cause: CauseAuthorSeparator, Region: authorSelector, Detail: text}
	}
	return strings.TrimSpace(after), nil
}

// ParseDescription reads the publication date and binding from lines 3 and 4
// of the description region.
func ParseDescription(text string) (pubDate, binding string, err error) {
	lines := strings.Split(text, "\n")
	if len(lines) <= bindingLine {
		return "", "", &ExtractionError{
			Cause:  CauseDescriptionTooShort,
			Region: descriptionSelector,
			Detail: "expected at least 5 lines",
		}
	}
	return labelValue(lines[pubDateLine]), labelValue(lines[bindingLine]), nil
}

// labelValue drops the "Label:" prefix of a line. Colons inside the value are
// replaced by spaces when the parts are rejoined.
func labelValue(line string) string {
	parts := strings.Split(line, ":")
	return strings.TrimSpace(strings.Join(parts[1:], " "))
}

// UpscaleCoverURL rewrites the first thumbnail size marker of an Amazon image
// URL to request a larger rendition. Other URLs are returned unchanged.
func UpscaleCoverURL(coverURL string) string {
	if strings.HasPrefix(coverURL, amazonImagePrefix) && strings.Contains(coverURL, thumbnailMarker) {
		return strings.Replace(coverURL, thumbnailMarker, upscaledMarker, 1)
	}
	return coverURL
}
