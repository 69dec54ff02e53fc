package characters

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

func TestDecodeCatalog_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantCats  int
		wantChars int
		wantErr   bool
	}{
		{"bare list", oneCategory, 1, 2, false},
		{"tagged ok", `{"status":"ok","retcode":0,"data":` + oneCategory + `}`, 1, 2, false},
		{"tagged ok without data", `{"status":"ok"}`, 0, 0, false},
		{"tagged ok null data", `{"status":"ok","data":null}`, 0, 0, false},
		{"tagged failed", `{"status":"failed","retcode":1404}`, 0, 0, true},
		{"tagged ok with object data", `{"status":"ok","data":{"type":"A"}}`, 0, 0, true},
		{"string", `"nope"`, 0, 0, true},
		{"number", `42`, 0, 0, true},
		{"empty", ``, 0, 0, true},
		{"non-object categories skipped", `[1, "x", {"type":"A","characters":[{"character_id":"1"}]}]`, 1, 1, false},
		{"non-object characters skipped", `[{"type":"A","characters":[null, {"character_id":"1"}, 7]}]`, 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, err := DecodeCatalog(json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, platform.ErrInvalidResponseFormat) {
					t.Fatalf("err = %v, want ErrInvalidResponseFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(cat) != tt.wantCats || cat.Count() != tt.wantChars {
				t.Errorf("got %d categories / %d characters, want %d / %d", len(cat), cat.Count(), tt.wantCats, tt.wantChars)
			}
		})
	}
}

func TestCharacter_PassesThroughExtraAttributes(t *testing.T) {
	raw := `{"character_id":7,"character_name":"Echo","preview_url":"https://x/y.mp3","tags":["calm"]}`
	var ch Character
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ch.ID != "7" || ch.Name != "Echo" {
		t.Fatalf("got %+v", ch)
	}
	if _, ok := ch.Extra["preview_url"]; !ok {
		t.Fatal("extra attribute dropped")
	}

	out, err := json.Marshal(ch)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if back["preview_url"] != "https://x/y.mp3" || back["character_id"] != "7" {
		t.Errorf("round trip lost data: %s", out)
	}
}
