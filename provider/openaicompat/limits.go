package openaicompat

import "strings"

// modelTokenLimits maps model-name fragments to context window sizes in
// tokens, longest match first. Used to populate TokenLimit() without
// configuration; WithTokenLimit overrides.
var modelTokenLimits = []struct {
	fragment string
	limit    int
}{
	{"gpt-4.1", 1_047_576},
	{"gpt-4o", 128_000},
	{"gpt-5", 400_000},
	{"o4-mini", 200_000},
	{"o3", 200_000},
	{"claude", 200_000},
	{"gemini-2.5", 1_048_576},
	{"gemini-2.0", 1_048_576},
	{"deepseek", 65_536},
	{"llama-3", 128_000},
	{"qwen", 131_072},
	{"mistral", 128_000},
}

// lookupTokenLimit returns the context window for a model name, or 0 when
// unknown.
func lookupTokenLimit(model string) int {
	m := strings.ToLower(model)
	for _, e := range modelTokenLimits {
		if strings.Contains(m, e.fragment) {
			return e.limit
		}
	}
	return 0
}
