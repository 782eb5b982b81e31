package api

import (
	"mime"
	"sort"
	"strconv"
	"strings"
)

// Media types the toolkit treats as first-class values.
const (
	TextPlain                 = "text/plain"
	TextHTML                  = "text/html"
	TextEventStream           = "text/event-stream"
	ApplicationJSON           = "application/json"
	ApplicationOctetStream    = "application/octet-stream"
	ApplicationFormURLEncoded = "application/x-www-form-urlencoded"
	MultipartFormData         = "multipart/form-data"
)

// ContentType is a media type with its optional charset and multipart boundary.
type ContentType struct {
	MediaType string
	Charset   string
	Boundary  string
}

// NewContentType returns a ContentType for mediaType with an optional charset.
func NewContentType(mediaType string, charset ...string) ContentType {
	ct := ContentType{MediaType: strings.ToLower(mediaType)}
	if len(charset) > 0 {
		ct.Charset = charset[0]
	}
	return ct
}

// ParseContentType parses a Content-Type header value.
func ParseContentType(s string) (ContentType, error) {
	mediaType, params, err := mime.ParseMediaType(s)
	if err != nil {
		return ContentType{}, err
	}
	return ContentType{
		MediaType: mediaType,
		Charset:   params["charset"],
		Boundary:  params["boundary"],
	}, nil
}

// String renders the header value.
func (c ContentType) String() string {
	params := map[string]string{}
	if c.Charset != "" {
		params["charset"] = c.Charset
	}
	if c.Boundary != "" {
		params["boundary"] = c.Boundary
	}
	if s := mime.FormatMediaType(c.MediaType, params); s != "" {
		return s
	}
	return c.MediaType
}

// Is reports whether the media type equals mediaType, ignoring parameters.
func (c ContentType) Is(mediaType string) bool {
	return strings.EqualFold(c.MediaType, mediaType)
}

// ParseAccept parses an Accept header into content types ordered by client
// preference (quality descending, header order for ties). Entries with q=0
// and unparseable entries are dropped.
func ParseAccept(header string) []ContentType {
	type weighted struct {
		ct ContentType
		q  float64
	}

	var entries []weighted
	for _, raw := range strings.Split(header, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		mediaType, params, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		q := 1.0
		if v, ok := params["q"]; ok {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			q = parsed
		}
		if q <= 0 {
			continue
		}
		entries = append(entries, weighted{
			ct: ContentType{MediaType: mediaType, Charset: params["charset"]},
			q:  q,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].q > entries[j].q })

	out := make([]ContentType, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ct)
	}
	return out
}
