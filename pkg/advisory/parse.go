package advisory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// envelope keys used by chat style APIs to wrap the generated text
var envelopeKeys = []string{"response", "content", "text", "output", "message"}

// ExtractJSON finds the analysis object in a reply. The reply may be raw JSON,
// a JSON envelope around generated text, markdown with a fenced block, or HTML
func ExtractJSON(body []byte, contentType string) ([]byte, error) {
	return extract(strings.TrimSpace(string(body)), contentType, 0)
}

func extract(text, contentType string, depth int) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedReply)
	}
	if depth > 2 {
		return nil, fmt.Errorf("%w: nested envelope too deep", ErrMalformedReply)
	}

	if looksHTML(contentType, text) {
		if obj := jsonFromHTML(text); obj != nil {
			return obj, nil
		}
		md, err := htmltomarkdown.ConvertString(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
		}
		text = strings.TrimSpace(md)
	}

	if json.Valid([]byte(text)) {
		if inner, ok := unwrapEnvelope(text); ok {
			return extract(strings.TrimSpace(inner), "", depth+1)
		}
		return []byte(text), nil
	}

	if m := fencePattern.FindStringSubmatch(text); m != nil && json.Valid([]byte(m[1])) {
		return []byte(m[1]), nil
	}
	if obj := firstJSONObject(text); obj != nil {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedReply)
}

func looksHTML(contentType, text string) bool {
	if strings.Contains(contentType, "html") {
		return true
	}
	return strings.HasPrefix(text, "<")
}

// jsonFromHTML looks in the elements that usually carry data verbatim
func jsonFromHTML(text string) []byte {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil
	}
	var found []byte
	doc.Find(`script[type="application/json"], pre, code`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if obj := firstJSONObject(s.Text()); obj != nil {
			found = obj
			return false
		}
		return true
	})
	return found
}

// unwrapEnvelope returns the generated text when the object is an API
// envelope rather than an analysis
func unwrapEnvelope(text string) (string, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return "", false
	}
	if _, ok := m["confidence"]; ok {
		return "", false
	}
	for _, k := range envelopeKeys {
		if s, ok := m[k].(string); ok {
			return s, true
		}
		// {"message": {"content": "..."}}
		if nested, ok := m[k].(map[string]any); ok {
			if s, ok := nested["content"].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

func firstJSONObject(s string) []byte {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil
	}
	candidate := []byte(s[start : end+1])
	if !json.Valid(candidate) {
		return nil
	}
	return candidate
}
