package guardrail

// Payload text extraction for OpenAI-style chat completion bodies.
// Requests carry texts in messages[].content; responses in
// choices[].message.content. A plain top-level "input" or "text" string
// is supported as a fallback for non-chat payloads.

// ExtractTexts pulls the guardrail-relevant texts out of a payload.
// The returned slice preserves payload order and may be empty.
func ExtractTexts(payload map[string]any, inputType InputType) []string {
	var texts []string
	if inputType == InputTypeResponse {
		for _, choice := range anySlice(payload["choices"]) {
			if msg, ok := choice["message"]; ok {
				if m, ok := msg.(map[string]any); ok {
					if s, ok := m["content"].(string); ok {
						texts = append(texts, s)
					}
				}
			}
		}
	} else {
		for _, msg := range anySlice(payload["messages"]) {
			if s, ok := msg["content"].(string); ok {
				texts = append(texts, s)
			}
		}
	}
	if len(texts) == 0 {
		for _, key := range []string{"input", "text"} {
			if s, ok := payload[key].(string); ok {
				texts = append(texts, s)
				break
			}
		}
	}
	return texts
}

// InjectTexts writes transformed texts back into a copy of the payload,
// at the same positions ExtractTexts read them from. Extra texts beyond
// the payload's slots are dropped; missing ones leave the original
// content in place. The input payload is never mutated.
func InjectTexts(payload map[string]any, inputType InputType, texts []string) map[string]any {
	out := copyMap(payload)
	i := 0
	if inputType == InputTypeResponse {
		for _, choice := range anySlice(out["choices"]) {
			m, ok := choice["message"].(map[string]any)
			if !ok {
				continue
			}
			if _, ok := m["content"].(string); ok && i < len(texts) {
				m["content"] = texts[i]
				i++
			}
		}
	} else {
		for _, msg := range anySlice(out["messages"]) {
			if _, ok := msg["content"].(string); ok && i < len(texts) {
				msg["content"] = texts[i]
				i++
			}
		}
	}
	if i < len(texts) {
		for _, key := range []string{"input", "text"} {
			if _, ok := out[key].(string); ok {
				out[key] = texts[i]
				break
			}
		}
	}
	return out
}

// ModelFrom returns the model name carried in the payload, if any.
func ModelFrom(payload map[string]any) string {
	s, _ := payload["model"].(string)
	return s
}

// anySlice coerces a payload value into a slice of objects, tolerating
// both []any (decoded JSON) and []map[string]any (constructed in Go).
func anySlice(v any) []map[string]any {
	switch vv := v.(type) {
	case []map[string]any:
		return vv
	case []any:
		out := make([]map[string]any, 0, len(vv))
		for _, e := range vv {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// copyMap deep-copies a payload so transformed texts never leak into
// the caller's copy of the request.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return copyMap(vv)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = copyValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(vv))
		for i, e := range vv {
			out[i] = copyMap(e)
		}
		return out
	default:
		return v
	}
}
