package prompt

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	defaultStyle     = "natural"
	defaultIntensity = "medium"
)

// Build composes the fallback instruction prompt when the client submits no
// free-form prompt, from the editor's style and intensity controls.
func Build(style, intensity string) string {
	style = strings.TrimSpace(style)
	if style == "" || strings.EqualFold(style, "custom") {
		style = defaultStyle
	}
	intensity = strings.TrimSpace(intensity)
	if intensity == "" || strings.EqualFold(intensity, "custom") {
		intensity = defaultIntensity
	}
	c := cases.Title(language.Und)
	return fmt.Sprintf("Portrait with %s makeup, %s intensity", c.String(style), strings.ToLower(intensity))
}
