package characters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

// envelope is the tagged success shape: {"status":"ok","data":[...]}.
type envelope struct {
	Status  string          `json:"status"`
	RetCode json.RawMessage `json:"retcode"`
	Data    json.RawMessage `json:"data"`
}

// DecodeCatalog parses a "list characters" response. Two shapes are accepted:
// a tagged envelope with status "ok", or a bare list of categories. Anything
// else is ErrInvalidResponseFormat. Entries that are not JSON objects are
// skipped.
func DecodeCatalog(raw json.RawMessage) (Catalog, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty response", platform.ErrInvalidResponseFormat)
	}

	switch raw[0] {
	case '[':
		return decodeCategories(raw)
	case '{':
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", platform.ErrInvalidResponseFormat, err)
		}
		if env.Status != "ok" {
			return nil, fmt.Errorf("%w: status %q", platform.ErrInvalidResponseFormat, env.Status)
		}
		data := bytes.TrimSpace(env.Data)
		if len(data) == 0 || bytes.Equal(data, []byte("null")) {
			return Catalog{}, nil
		}
		return decodeCategories(data)
	default:
		return nil, fmt.Errorf("%w: unexpected %q", platform.ErrInvalidResponseFormat, raw[0])
	}
}

func decodeCategories(raw json.RawMessage) (Catalog, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: data is not a list: %v", platform.ErrInvalidResponseFormat, err)
	}

	cat := make(Catalog, 0, len(items))
	for i, item := range items {
		if !isObject(item) {
			slog.Debug("characters: skipping non-object category", "index", i)
			continue
		}
		var wire struct {
			Type       json.RawMessage   `json:"type"`
			Characters []json.RawMessage `json:"characters"`
		}
		if err := json.Unmarshal(item, &wire); err != nil {
			slog.Debug("characters: skipping malformed category", "index", i, "error", err)
			continue
		}

		category := Category{Type: scalarString(wire.Type)}
		for _, rawChar := range wire.Characters {
			if !isObject(rawChar) {
				continue
			}
			var ch Character
			if err := json.Unmarshal(rawChar, &ch); err != nil {
				continue
			}
			category.Characters = append(category.Characters, ch)
		}
		cat = append(cat, category)
	}
	return cat, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
