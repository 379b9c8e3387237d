package extractor

// Structural regions of an addall.com ISBN search result.
const (
	titleSelector       = "div.ntitle"
	authorSelector      = "div.nauthor"
	descriptionSelector = "div.ndesc"
	imageSelector       = "div.nimg"
)

const authorSeparator = "by"

// Zero-indexed lines of the description region holding "Label: value" pairs.
const (
	pubDateLine = 3
	bindingLine = 4
)

// Amazon serves thumbnails with a "160" size marker; "512" requests a larger rendition.
const (
	amazonImagePrefix = "https://m.media-amazon.com/"
	thumbnailMarker   = "160"
	upscaledMarker    = "512"
)
