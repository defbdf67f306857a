package guard

import (
	"encoding/json"
	"fmt"
	"strings"
)

const detectionPrompt = `You are a strict PII detection system. Find ALL personally identifiable information.

IMPORTANT: Always detect these types:
- name: Any person's full name or partial name (first name, last name, or both)
- email: Email addresses
- phone: Phone numbers in any format
- address: Physical addresses, cities, streets
- ssn: Social security numbers
- credit_card: Credit/debit card numbers
- date: Dates that could be birthdays or significant personal dates
- ip_address: IP addresses

Return JSON: {"pii": [{"type": "...", "value": "exact text"}]}
If no PII found, return: {"pii": []}

Be thorough - it's better to flag something as PII than to miss it.`

// llmItem is one entry of a model's answer. Offsets, if present, are ignored.
type llmItem struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// parseLLMFindings decodes a model answer shaped as {"pii": [...]},
// {"results": [...]} or a bare array.
func parseLLMFindings(content string) ([]finding, error) {
	content = stripCodeFence(stripThinkBlock(content))
	if content == "" {
		return nil, nil
	}

	var items []llmItem
	if strings.HasPrefix(content, "{") {
		var wrapped struct {
			PII     []llmItem `json:"pii"`
			Results []llmItem `json:"results"`
		}
		if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
			return nil, fmt.Errorf("decoding model answer: %w", err)
		}
		items = wrapped.PII
		if items == nil {
			items = wrapped.Results
		}
	} else {
		if err := json.Unmarshal([]byte(extractJSONArray(content)), &items); err != nil {
			return nil, fmt.Errorf("decoding model answer: %w", err)
		}
	}

	findings := make([]finding, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Value) == "" {
			continue
		}
		findings = append(findings, finding{Type: mapLLMType(it.Type), Value: it.Value})
	}
	return findings, nil
}

// extractJSONArray finds the first [...] substring in s.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return s
	}
	end := strings.LastIndex(s, "]")
	if end < start {
		return s
	}
	return s[start : end+1]
}

// stripThinkBlock removes a leading <think>...</think> reasoning block.
func stripThinkBlock(s string) string {
	const open, close = "<think>", "</think>"
	start := strings.Index(s, open)
	if start < 0 {
		return s
	}
	end := strings.Index(s, close)
	if end < 0 {
		return strings.TrimSpace(s[:start])
	}
	return strings.TrimSpace(s[:start] + s[end+len(close):])
}

// stripCodeFence removes ```json ... ``` or ``` ... ``` wrappers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
