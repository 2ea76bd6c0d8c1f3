package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
)

// maxMultipartMemory bounds the in-memory part of a multipart body.
const maxMultipartMemory = 1 << 20

// Fields is the flat key/value view of a webhook body.
type Fields map[string]any

// String returns the trimmed string form of key, or "" when it is missing or null.
func (f Fields) String(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// ParseFields decodes raw according to contentType. Form and multipart
// bodies become a flat map of first values; everything else is read as a
// JSON object. Any decode failure yields an empty map.
func ParseFields(raw []byte, contentType string) Fields {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case strings.HasPrefix(mediaType, "application/x-www-form-urlencoded"):
		return parseForm(raw)
	case strings.HasPrefix(mediaType, "multipart/form-data"):
		return parseMultipart(raw, params["boundary"])
	default:
		return parseJSON(raw)
	}
}

func parseForm(raw []byte) Fields {
	values, err := url.ParseQuery(string(raw))
	if err != nil && len(values) == 0 {
		return Fields{}
	}
	return fromValues(values)
}

func parseMultipart(raw []byte, boundary string) Fields {
	if boundary == "" {
		return Fields{}
	}
	form, err := multipart.NewReader(bytes.NewReader(raw), boundary).ReadForm(maxMultipartMemory)
	if err != nil {
		return Fields{}
	}
	defer func() { _ = form.RemoveAll() }()

	return fromValues(form.Value)
}

func parseJSON(raw []byte) Fields {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return Fields{}
	}
	// Trailing garbage after the object means the body was not JSON.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Fields{}
	}
	return Fields(obj)
}

func fromValues(values map[string][]string) Fields {
	out := make(Fields, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
