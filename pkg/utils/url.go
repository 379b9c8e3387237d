package utils

import (
	"net/url"
)

// ISBNSearchURL builds the upstream search URL for an ISBN query.
// Existing query parameters on base are preserved.
func ISBNSearchURL(base, isbn string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("query", isbn)
	q.Set("type", "ISBN")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
// An already absolute URL is returned exactly as given.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	if relURL.IsAbs() {
		return relative, nil
	}
	return base.ResolveReference(relURL).String(), nil
}
