package projection

import "unicode/utf8"

// charactersPerToken is a conservative ratio for English prose.
const charactersPerToken = 4

// perMessageOverhead approximates role markers and framing.
const perMessageOverhead = 4

// EstimateTokens returns a rough token count for messages, rounding up.
func EstimateTokens(messages []Message) int {
	if len(messages) == 0 {
		return 0
	}
	characters := 0
	for _, msg := range messages {
		characters += utf8.RuneCountInString(msg.Content) + utf8.RuneCountInString(string(msg.Role))
	}
	return characters/charactersPerToken + len(messages)*perMessageOverhead + 1
}
