package ai

import (
	"fmt"
	"strings"
)

const ClassifyEntityPrompt = `
# Task Context
You label named entities that were extracted from scanned legal documents and flight logs.

# Detailed Task Description & Rules
- Decide whether the name refers to a "person", an "organization" or a "location".
- Organizations include companies, trusts, foundations, government agencies and their acronyms.
- Locations include islands, estates, ranches, streets, airports and cities.
- Judge whole words only. A surname such as "Boardman" is not an organization because it contains "board".
- If you are not sure, answer "unknown" and give a low confidence.

# Background Data
Name: %s
%s
# Immediate Task Description or Request
Return a JSON object with the fields "type" and "confidence" (0.0 to 1.0).
`

// FormatClassifyPrompt fills ClassifyEntityPrompt. Empty context fields are
// left out.
func FormatClassifyPrompt(name string, context map[string]string, keys ...string) string {
	var b strings.Builder
	for _, k := range keys {
		if v := strings.TrimSpace(context[k]); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	return fmt.Sprintf(ClassifyEntityPrompt, name, b.String())
}
