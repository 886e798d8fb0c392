package strand

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marqueetv/marquee/internal/domain"
)

// Extraction errors
var (
	errNoEmbeddedJSON = errors.New("no embedded template JSON in page")
	errNoLoginForm    = errors.New("no sign-in form in page")
)

// extractTemplateProps pulls the JSON document Strand embeds in its
// server rendered pages. Several template scripts may be present; the
// first one that decodes and carries a payload wins. Pages that inline
// the payload in a bootstrap script instead of a template tag are
// handled by a raw scan over the document.
func extractTemplateProps(html []byte) (*templateProps, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var props *templateProps
	doc.Find(`script[type="text/template"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var p templateProps
		if err := json.Unmarshal([]byte(s.Text()), &p); err != nil {
			// Decorative templates are not JSON, keep scanning
			return true
		}
		if p.Props.Storefront == nil && p.Props.Collection == nil {
			return true
		}
		props = &p
		return false
	})
	if props == nil {
		props = scanEmbeddedProps(html)
	}
	if props == nil {
		return nil, errNoEmbeddedJSON
	}
	return props, nil
}

// scanEmbeddedProps anchors on the props object prefix and carves out
// the balanced JSON object around it. Occurrences that do not parse, or
// parse to an empty payload, are skipped.
func scanEmbeddedProps(html []byte) *templateProps {
	anchor := []byte(`{"props"`)
	for at := 0; ; {
		i := bytes.Index(html[at:], anchor)
		if i < 0 {
			return nil
		}
		start := at + i
		at = start + 1

		raw, ok := carveObject(html[start:])
		if !ok {
			continue
		}
		var p templateProps
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		if p.Props.Storefront == nil && p.Props.Collection == nil {
			continue
		}
		return &p
	}
}

// carveObject returns the balanced JSON object starting at b[0] == '{',
// counting braces outside string literals.
func carveObject(b []byte) ([]byte, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(b); i++ {
		c := b[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1], true
			}
		}
	}
	return nil, false
}

// loginForm is the parsed sign-in form
type loginForm struct {
	Action string     // POST target, resolved against the page URL
	Fields url.Values // Hidden fields to echo back verbatim
}

// extractLoginForm parses the sign-in form and its hidden fields
func extractLoginForm(html []byte, pageURL string) (*loginForm, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	form := doc.Find(`form[name="signIn"]`).First()
	if form.Length() == 0 {
		return nil, errNoLoginForm
	}

	action, _ := form.Attr("action")
	resolved, err := resolveURL(pageURL, action)
	if err != nil {
		return nil, err
	}

	fields := url.Values{}
	form.Find(`input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := s.Attr("value")
		fields.Set(name, value)
	})

	return &loginForm{Action: resolved, Fields: fields}, nil
}

// challengeFrom inspects a login response for an interposed verification
// step. Returns nil when the page carries none.
func challengeFrom(html []byte) *domain.Challenge {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}

	if mfa := doc.Find("form#mfa-challenge").First(); mfa.Length() > 0 {
		token, _ := mfa.Find(`input[name="challengeToken"]`).First().Attr("value")
		hint := strings.TrimSpace(mfa.Find("p.challenge-prompt").First().Text())
		return &domain.Challenge{Kind: domain.ChallengeMFA, Token: token, Hint: hint}
	}

	if captcha := doc.Find("form#captcha-challenge").First(); captcha.Length() > 0 {
		token, _ := captcha.Find(`input[name="challengeToken"]`).First().Attr("value")
		hint, _ := captcha.Find("img.challenge-image").First().Attr("src")
		return &domain.Challenge{Kind: domain.ChallengeCaptcha, Token: token, Hint: hint}
	}

	return nil
}

// failureReason pulls the sign-in error banner text, if any
func failureReason(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("div#auth-error").First().Text())
}

// resolveURL resolves a possibly relative ref against the page URL
func resolveURL(pageURL, ref string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	target, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(target).String(), nil
}
