package conv

import (
	"testing"
	"time"
)

func TestConfigGetters(t *testing.T) {
	m := map[string]any{
		"name":    "feed",
		"limit":   500,
		"ratio":   0.25,
		"ids":     []any{"a", 7.0, true},
		"timeout": "1500ms",
		"seconds": 3,
		"bad":     "soon",
	}

	if got := ConfigGet(m, "name", ""); got != "feed" {
		t.Errorf("ConfigGet(name) = %q", got)
	}
	if got := ConfigGet(m, "limit", "x"); got != "x" {
		t.Errorf("ConfigGet type mismatch = %q, want default", got)
	}
	if got := ConfigGetInt64(m, "limit", 0); got != 500 {
		t.Errorf("ConfigGetInt64(limit) = %d", got)
	}
	if got := ConfigGetFloat64(m, "limit", 0); got != 500 {
		t.Errorf("ConfigGetFloat64(limit) = %v", got)
	}
	if got := ConfigGetFloat64(m, "missing", 1.5); got != 1.5 {
		t.Errorf("ConfigGetFloat64(missing) = %v", got)
	}
	ids := SliceAnyToString(m["ids"])
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "7" || ids[2] != "1" {
		t.Errorf("SliceAnyToString = %v", ids)
	}

	durations := []struct {
		key  string
		want time.Duration
	}{
		{"timeout", 1500 * time.Millisecond},
		{"seconds", 3 * time.Second},
		{"missing", time.Minute},
	}
	for _, d := range durations {
		got, err := ConfigGetDuration(m, d.key, time.Minute)
		if err != nil || got != d.want {
			t.Errorf("ConfigGetDuration(%s) = %v, %v; want %v", d.key, got, err, d.want)
		}
	}
	if _, err := ConfigGetDuration(m, "bad", 0); err == nil {
		t.Error("expected parse error")
	}
}

func TestMapToFloat64(t *testing.T) {
	got := MapToFloat64(map[string]any{"a": 1, "b": 0.5, "c": "x"})
	if len(got) != 2 || got["a"] != 1 || got["b"] != 0.5 {
		t.Errorf("MapToFloat64 = %v", got)
	}
}
