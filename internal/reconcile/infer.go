package reconcile

import (
	"regexp"
	"strings"

	"hotel-messaging/internal/models"
)

// NameSource records which heuristic produced a guest name.
type NameSource string

const (
	SourceNone       NameSource = ""
	SourceAnnotation NameSource = "annotation"
	SourceSlot       NameSource = "template-slot"
	SourceGreeting   NameSource = "greeting"
	SourceNameMap    NameSource = "name-map"
)

var (
	greetingPattern    = regexp.MustCompile(`(?i)^(?:hi|hello|dear|hey)\s+["']?([A-Za-z\-']+(?:\s+[A-Za-z\-']{1,40})?)["']?[,.!\s]`)
	leadingWordPattern = regexp.MustCompile(`^["']?([A-Za-z\-']{2,40})["']?[,\s]`)
	dearPattern        = regexp.MustCompile(`(?i)Dear[:\s]+["']?([A-Za-z\-']+(?:\s+[A-Za-z\-']{1,40})?)["']?`)
	shortAlphaPattern  = regexp.MustCompile(`^[A-Za-z\-' ]{2,60}$`)
)

// nameSlotHints mark template variable keys that carry a guest name.
var nameSlotHints = []string{"first", "name", "guest"}

// NameFromSlots returns the first template variable that looks like a
// name: first by key hint, then any short alphabetic value.
func NameFromSlots(vars models.TemplateVariables) string {
	for _, v := range vars {
		value := strings.TrimSpace(v.Value)
		if value == "" {
			continue
		}
		key := strings.ToLower(v.Key)
		for _, hint := range nameSlotHints {
			if strings.Contains(key, hint) {
				return value
			}
		}
	}
	for _, v := range vars {
		value := strings.TrimSpace(v.Value)
		if shortAlphaPattern.MatchString(value) {
			return value
		}
	}
	return ""
}

// NameFromGreeting extracts a name from the start of a message body:
// "Hi Robert,", a bare "Emma, ..." or a "Dear: Name" anywhere.
func NameFromGreeting(body string) string {
	text := strings.TrimSpace(body)
	if text == "" {
		return ""
	}
	for _, re := range []*regexp.Regexp{greetingPattern, leadingWordPattern, dearPattern} {
		if m := re.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// InferName applies the message-level heuristics in precedence order:
// template slots, then the greeting in the body.
//
// The heuristics have no ordering proof beyond this sequence; changing it
// can give a guest a different name between runs.
func InferName(m *models.Message) (string, NameSource) {
	if m.Template != nil {
		if name := NameFromSlots(m.Template.Variables); name != "" {
			return name, SourceSlot
		}
	}
	if name := NameFromGreeting(m.Body.PlainText()); name != "" {
		return name, SourceGreeting
	}
	return "", SourceNone
}

// earliestName scans messages oldest first and returns the first name
// found from annotations or message heuristics.
func earliestName(msgs []*models.Message) (string, NameSource) {
	for _, m := range msgs {
		if ann := strings.TrimSpace(m.ContactAnnotationName()); ann != "" {
			return ann, SourceAnnotation
		}
		if name, src := InferName(m); name != "" {
			return name, src
		}
	}
	return "", SourceNone
}
