package inject

import (
	"fmt"
	"strings"
)

// Attr is one attribute of the injected element, in insertion order.
type Attr struct {
	Key string
	Val string
}

// Button describes the sidekick action button to inject.
type Button struct {
	Tag      string   // custom element name, e.g. sk-action-button
	PluginID string   // data-sk-plugin value; the idempotency key
	Label    string   // text, title and aria-label
	Classes  []string // class list
	Event    string   // event name reported when the button is activated
}

// DefaultButton is the A/B testing fallback button. Its attributes match
// the sidekick's own publish button.
func DefaultButton() Button {
	return Button{
		Tag:      "sk-action-button",
		PluginID: "experimentation-fallback",
		Label:    "A/B Testing",
		Classes:  []string{"publish", "experimentation"},
		Event:    "experimentation",
	}
}

// Selector matches an already injected copy of the button.
func (b Button) Selector() string {
	return fmt.Sprintf(`[data-sk-plugin="%s"]`, cssEscapeString(b.PluginID))
}

// Attributes returns the full attribute list of the element.
func (b Button) Attributes() []Attr {
	attrs := []Attr{
		{"quiet", ""},
		{"slot", ""},
		{"dir", "ltr"},
		{"role", "button"},
		{"focusable", ""},
		{"tabindex", "0"},
		{"data-sk-plugin", b.PluginID},
	}
	if len(b.Classes) > 0 {
		attrs = append(attrs, Attr{"class", strings.Join(b.Classes, " ")})
	}
	if b.Label != "" {
		attrs = append(attrs, Attr{"title", b.Label}, Attr{"aria-label", b.Label})
	}
	return attrs
}

// cssEscapeString escapes a value for a double-quoted CSS string.
func cssEscapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return r.Replace(s)
}
