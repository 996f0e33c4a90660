package ingest

import "encoding/json"

// maxScanNodes bounds the fallback structural scan so an adversarial deeply
// nested payload cannot burn unbounded work.
const maxScanNodes = 10000

// identityKeys are the fields whose presence marks an object as naming a
// conversation or sender.
var identityKeys = []string{"chatId", "from", "jid", "remoteJid", "phone"}

// NormalizeRaw decodes a webhook body and normalizes it into candidate
// records. Unparsable bodies yield nil: malformed input is dropped, not
// surfaced.
func NormalizeRaw(body []byte) []map[string]any {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil
	}
	return Normalize(value)
}

// Normalize produces zero or more candidate records from one decoded webhook
// body. The recognized envelope shapes are tried in order and the first match
// wins; bodies matching none of them fall back to a bounded recursive scan
// that collects every nested object exposing both an identity-bearing and a
// content-bearing field, in document order.
func Normalize(body any) []map[string]any {
	// Some providers deliver the JSON document itself as a quoted string.
	if s, ok := body.(string); ok {
		var reparsed any
		if err := json.Unmarshal([]byte(s), &reparsed); err != nil {
			return nil
		}
		body = reparsed
	}

	obj, isObj := body.(map[string]any)
	if isObj {
		// Shape 1: {type: "message", message: {...}}
		if stringField(obj, "type") == "message" {
			if msg, ok := obj["message"].(map[string]any); ok {
				return []map[string]any{msg}
			}
		}
		// Shape 2: {messages: [...]}
		if arr, ok := obj["messages"].([]any); ok {
			return objectsOf(arr)
		}
		// Shape 3: {event: "message", data: ...}
		if stringField(obj, "event") == "message" {
			switch data := obj["data"].(type) {
			case map[string]any:
				return []map[string]any{data}
			case []any:
				return objectsOf(data)
			}
		}
		// Shape 4: the body itself is a single message-like object.
		if hasIdentityField(obj) && hasContentField(obj) {
			return []map[string]any{obj}
		}
		// Shape 5: {msg: {...}} with an identity-bearing nested object.
		if msg, ok := obj["msg"].(map[string]any); ok && hasIdentityField(msg) {
			return []map[string]any{msg}
		}
		// Shape 6: callback-style single objects.
		if stringField(obj, "type") == receivedCallbackType {
			return []map[string]any{obj}
		}
		if _, ok := obj["phone"]; ok {
			return []map[string]any{obj}
		}
		if _, ok := obj["text"].(map[string]any); ok {
			return []map[string]any{obj}
		}
	}

	// Correctness net for unanticipated envelope variants.
	budget := maxScanNodes
	return scan(body, nil, &budget)
}

// scan walks the whole document depth-first collecting message-like objects.
func scan(value any, found []map[string]any, budget *int) []map[string]any {
	if *budget <= 0 {
		return found
	}
	*budget--
	switch v := value.(type) {
	case map[string]any:
		if hasIdentityField(v) && hasContentField(v) {
			found = append(found, v)
			return found
		}
		for _, key := range sortedKeys(v) {
			found = scan(v[key], found, budget)
		}
	case []any:
		for _, item := range v {
			found = scan(item, found, budget)
		}
	}
	return found
}

func hasIdentityField(obj map[string]any) bool {
	for _, key := range identityKeys {
		if s, ok := obj[key].(string); ok && s != "" {
			return true
		}
		if n, ok := obj[key].(float64); ok && n != 0 {
			return true
		}
	}
	return false
}

func hasContentField(obj map[string]any) bool {
	if _, ok := obj["body"].(string); ok {
		return true
	}
	switch text := obj["text"].(type) {
	case string:
		return true
	case map[string]any:
		if _, ok := text["message"]; ok {
			return true
		}
		if _, ok := text["caption"]; ok {
			return true
		}
	}
	if _, ok := obj["caption"].(string); ok {
		return true
	}
	for _, key := range []string{"mediaUrl", "imageUrl", "documentUrl"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return true
		}
	}
	return false
}

func objectsOf(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
