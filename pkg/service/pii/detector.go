package pii

import (
	"regexp"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
)

// Kind identifies a class of personally identifiable information
type Kind string

const (
	KindEmail            Kind = "email"
	KindPhone            Kind = "phone"
	KindSSN              Kind = "ssn"
	KindCreditCard       Kind = "credit_card"
	KindSensitiveKeyword Kind = "sensitive_keyword"
)

// Finding is a single detected PII span. LuhnValid records whether a
// credit_card match passes the Luhn checksum; detection is deliberately
// conservative and keeps non-Luhn matches so that card-like sequences are
// never missed.
type Finding struct {
	Kind      Kind
	Start     int
	End       int
	Value     string
	LuhnValid bool
}

// Result is the outcome of sanitizing a text
type Result struct {
	Text     string
	Redacted []Kind
	Changed  bool
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b\d{9}\b`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ \-]?){13,19}\b`)
)

var defaultKeywords = []string{
	"password",
	"passphrase",
	"secret key",
	"api key",
	"apikey",
	"access token",
	"private key",
	"credential",
	"social security",
	"credit card number",
}

// Detector pattern-matches and redacts sensitive content in candidate memory
// text. Construct it once; Detect and Sanitize are safe for concurrent use.
type Detector struct {
	enabled      bool
	autoSanitize bool
	keywords     []string
}

// Option configures a Detector
type Option func(*Detector)

// WithDetection toggles PII detection entirely. When disabled, Sanitize is a
// pass-through.
func WithDetection(enabled bool) Option {
	return func(d *Detector) {
		d.enabled = enabled
	}
}

// WithAutoSanitization toggles redaction. When disabled, any detection causes
// the write to be rejected instead of redacted.
func WithAutoSanitization(enabled bool) Option {
	return func(d *Detector) {
		d.autoSanitize = enabled
	}
}

// WithKeywords adds extra sensitive keywords on top of the built-in list
func WithKeywords(keywords ...string) Option {
	return func(d *Detector) {
		d.keywords = append(d.keywords, keywords...)
	}
}

// New creates a Detector with detection and auto-sanitization enabled
func New(opts ...Option) *Detector {
	d := &Detector{
		enabled:      true,
		autoSanitize: true,
		keywords:     append([]string{}, defaultKeywords...),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect reports every PII span in the text. Matches of different kinds may
// overlap; all are reported.
func (d *Detector) Detect(text string) []Finding {
	if !d.enabled {
		return nil
	}

	var findings []Finding

	match := func(kind Kind, re *regexp.Regexp) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			f := Finding{
				Kind:  kind,
				Start: loc[0],
				End:   loc[1],
				Value: text[loc[0]:loc[1]],
			}
			if kind == KindCreditCard {
				f.LuhnValid = luhnValid(stripNonDigits(f.Value))
			}
			findings = append(findings, f)
		}
	}

	match(KindEmail, emailPattern)
	match(KindPhone, phonePattern)
	match(KindSSN, ssnPattern)
	match(KindCreditCard, cardPattern)

	lower := strings.ToLower(text)
	for _, kw := range d.keywords {
		offset := 0
		for {
			idx := strings.Index(lower[offset:], kw)
			if idx < 0 {
				break
			}
			start := offset + idx
			findings = append(findings, Finding{
				Kind:  KindSensitiveKeyword,
				Start: start,
				End:   start + len(kw),
				Value: text[start : start+len(kw)],
			})
			offset = start + len(kw)
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Start != findings[j].Start {
			return findings[i].Start < findings[j].Start
		}
		return findings[i].End > findings[j].End
	})

	return findings
}

// Sanitize redacts every detected span with a category-tagged placeholder.
// When auto-sanitization is disabled and anything is detected, it returns
// model.ErrPIIRejected and the caller must abort the write.
func (d *Detector) Sanitize(text string) (*Result, error) {
	findings := d.Detect(text)
	if len(findings) == 0 {
		return &Result{Text: text}, nil
	}

	if !d.autoSanitize {
		kinds := uniqueKinds(findings)
		return nil, goerr.Wrap(model.ErrPIIRejected, "cannot persist content with detected PII",
			goerr.V("kinds", kinds),
		)
	}

	// Merge overlapping spans, keeping the kind of the widest match, then
	// replace right-to-left so earlier offsets stay valid.
	merged := mergeSpans(findings)
	out := []byte(text)
	for i := len(merged) - 1; i >= 0; i-- {
		m := merged[i]
		placeholder := "[REDACTED:" + strings.ToUpper(string(m.Kind)) + "]"
		out = append(out[:m.Start], append([]byte(placeholder), out[m.End:]...)...)
	}

	return &Result{
		Text:     string(out),
		Redacted: uniqueKinds(findings),
		Changed:  true,
	}, nil
}

func mergeSpans(findings []Finding) []Finding {
	var merged []Finding
	for _, f := range findings {
		if len(merged) == 0 {
			merged = append(merged, f)
			continue
		}
		last := &merged[len(merged)-1]
		if f.Start < last.End {
			if f.End > last.End {
				last.End = f.End
			}
		} else {
			merged = append(merged, f)
		}
	}
	return merged
}

func uniqueKinds(findings []Finding) []Kind {
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, f := range findings {
		if !seen[f.Kind] {
			seen[f.Kind] = true
			kinds = append(kinds, f.Kind)
		}
	}
	return kinds
}

// luhnValid checks whether a digit string passes the Luhn algorithm
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
