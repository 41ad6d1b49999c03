package gate

import "testing"

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		isClothing bool
		hasText    bool
		wantErr    bool
	}{
		{name: "pass", content: `{"is_clothing": true, "has_text": false}`, isClothing: true},
		{name: "text slide", content: `{"is_clothing": true, "has_text": true}`, isClothing: true, hasText: true},
		{name: "not clothing", content: `{"is_clothing": false, "has_text": false}`},
		{name: "padded whitespace", content: "\n  {\"is_clothing\": true, \"has_text\": false}  \n", isClothing: true},
		{name: "prose answer", content: "Sure! The image shows clothing.", wantErr: true},
		{name: "empty", content: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := ParseVerdict(tc.content)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %+v", v)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.IsClothing != tc.isClothing || v.HasText != tc.hasText {
				t.Errorf("got %+v", v)
			}
		})
	}
}

func TestNewOpenAIGate_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIGate("", ""); err == nil {
		t.Fatal("expected an error for a missing api key")
	}
	g, err := NewOpenAIGate("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.model != DefaultModel {
		t.Errorf("expected default model, got %q", g.model)
	}
}
