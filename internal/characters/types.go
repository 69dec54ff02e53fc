// Package characters caches the AI voice character catalog the platform
// reports for each group and resolves which character speaks for a group.
package characters

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Character is one voice persona. ID is the stable identity; Name is for
// display only and may repeat. Any other attribute the platform sends is kept
// in Extra and written back unchanged.
type Character struct {
	ID    string
	Name  string
	Extra map[string]json.RawMessage
}

// Category groups characters under a platform-defined type label.
type Category struct {
	Type       string      `json:"type"`
	Characters []Character `json:"characters"`
}

// Catalog is the ordered list of categories for one group.
type Catalog []Category

const (
	keyID   = "character_id"
	keyName = "character_name"
)

// UnmarshalJSON accepts character_id as a JSON string or number.
func (c *Character) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*c = Character{}
	if raw, ok := fields[keyID]; ok {
		c.ID = scalarString(raw)
		delete(fields, keyID)
	}
	if raw, ok := fields[keyName]; ok {
		c.Name = scalarString(raw)
		delete(fields, keyName)
	}
	if len(fields) > 0 {
		c.Extra = fields
	}
	return nil
}

// MarshalJSON writes the id and name back under their platform keys next to
// the pass-through attributes.
func (c Character) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+2)
	for k, v := range c.Extra {
		out[k] = v
	}
	out[keyID] = c.ID
	out[keyName] = c.Name
	return json.Marshal(out)
}

// scalarString renders a JSON scalar the way it would print: strings unquoted,
// numbers and booleans verbatim, null as "".
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Characters returns every character in iteration order: categories first to
// last, characters first to last within each.
func (cat Catalog) Characters() []Character {
	var out []Character
	for _, category := range cat {
		out = append(out, category.Characters...)
	}
	return out
}

// First returns the first character in iteration order.
func (cat Catalog) First() (Character, bool) {
	for _, category := range cat {
		if len(category.Characters) > 0 {
			return category.Characters[0], true
		}
	}
	return Character{}, false
}

// FindByID scans for a character whose id equals id.
func (cat Catalog) FindByID(id string) (Character, bool) {
	if id == "" {
		return Character{}, false
	}
	for _, category := range cat {
		for _, ch := range category.Characters {
			if ch.ID == id {
				return ch, true
			}
		}
	}
	return Character{}, false
}

// FindByIdentifier returns the first character whose id or name equals ident.
func (cat Catalog) FindByIdentifier(ident string) (Character, bool) {
	for _, category := range cat {
		for _, ch := range category.Characters {
			if ch.ID == ident || ch.Name == ident {
				return ch, true
			}
		}
	}
	return Character{}, false
}

// Count is the total number of characters across categories.
func (cat Catalog) Count() int {
	n := 0
	for _, category := range cat {
		n += len(category.Characters)
	}
	return n
}

func (c Character) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.ID)
}
