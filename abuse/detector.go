package abuse

import (
	"encoding/json"
	"mime"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Kind names a matched signature family.
type Kind string

const (
	KindQueryOperator Kind = "query_operator_injection"
	KindSQLInjection  Kind = "sql_injection"
	KindXSS           Kind = "xss_attempt"
	KindPathTraversal Kind = "path_traversal"
	KindCodeInjection Kind = "code_injection"
)

// Mode selects what the pipeline does with a match.
type Mode string

const (
	// ModeBlock rejects any request with a match.
	ModeBlock Mode = "block"
	// ModeLogOnly records matches but lets the request through.
	ModeLogOnly Mode = "log-only"
)

// Payload is everything about a request the detector inspects.
type Payload struct {
	Path        string
	Body        []byte
	ContentType string
	Query       url.Values
	Params      map[string]string
}

type signature struct {
	kind    Kind
	pattern *regexp.Regexp
}

var defaultSignatures = []signature{
	{KindQueryOperator, regexp.MustCompile(`(?i)(^|[^\w$])\$(where|gt|gte|lt|lte|ne|eq|in|nin|regex|exists|expr|or|and|not|nor|elemmatch)\b`)},
	{KindSQLInjection, regexp.MustCompile(`(?i)union.*select`)},
	{KindXSS, regexp.MustCompile(`(?i)<script`)},
	{KindPathTraversal, regexp.MustCompile(`\.\./|\.\.\\`)},
	{KindCodeInjection, regexp.MustCompile(`(?i)\b(exec|eval)\(`)},
}

// Detector matches payloads against a fixed signature set.
type Detector struct {
	signatures []signature
	mode       Mode
}

// NewDetector returns a Detector in the given mode. An empty mode means ModeBlock.
func NewDetector(mode Mode) *Detector {
	if mode == "" {
		mode = ModeBlock
	}
	return &Detector{signatures: defaultSignatures, mode: mode}
}

// Mode reports the configured mode.
func (d *Detector) Mode() Mode {
	return d.mode
}

// Blocks reports whether matches should reject the request.
func (d *Detector) Blocks() bool {
	return d.mode != ModeLogOnly
}

// Scan returns the kinds matched anywhere in p, sorted, without duplicates.
func (d *Detector) Scan(p Payload) []Kind {
	flat := Flatten(p)
	if flat == "" {
		return nil
	}

	var kinds []Kind
	for _, sig := range d.signatures {
		if sig.pattern.MatchString(flat) {
			kinds = append(kinds, sig.kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Flatten renders path, body, query and params as one space-separated string of keys and
// values. JSON bodies are walked recursively so nested keys such as {"$gt": ""} surface.
func Flatten(p Payload) string {
	var b strings.Builder
	write := func(s string) {
		if s == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}

	if p.Path != "" {
		write(p.Path)
		if unescaped, err := url.PathUnescape(p.Path); err == nil && unescaped != p.Path {
			write(unescaped)
		}
	}
	flattenBody(p.ContentType, p.Body, write)
	flattenValues(p.Query, write)

	keys := make([]string, 0, len(p.Params))
	for k := range p.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k)
		write(p.Params[k])
	}
	return b.String()
}

func flattenBody(contentType string, body []byte, write func(string)) {
	if len(body) == 0 {
		return
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/json":
		var v any
		if json.Unmarshal(body, &v) == nil {
			walk(v, write)
			return
		}
	case "application/x-www-form-urlencoded":
		if values, err := url.ParseQuery(string(body)); err == nil {
			flattenValues(values, write)
			return
		}
	}
	write(string(body))
}

func flattenValues(values url.Values, write func(string)) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k)
		for _, v := range values[k] {
			write(v)
		}
	}
}

func walk(v any, write func(string)) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			write(k)
			walk(t[k], write)
		}
	case []any:
		for _, item := range t {
			walk(item, write)
		}
	case string:
		write(t)
	case json.Number:
		write(t.String())
	}
}
