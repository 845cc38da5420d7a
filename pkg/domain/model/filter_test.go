package model_test

import (
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald/pkg/domain/model"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	gt.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestEventFilter_Match(t *testing.T) {
	payload := `{
		"action": "published",
		"release": {"tag_name": "v1.2.0", "prerelease": false, "id": 42, "assets": [{"name": "a.zip"}]},
		"repository": {"full_name": "octo/app", "topics": null}
	}`

	tests := []struct {
		name   string
		filter model.EventFilter
		want   bool
	}{
		{"jsonpath root", model.EventFilter{FieldPath: "$.action", ExpectedValue: "published"}, true},
		{"plain path", model.EventFilter{FieldPath: "action", ExpectedValue: "published"}, true},
		{"case sensitive", model.EventFilter{FieldPath: "action", ExpectedValue: "Published"}, false},
		{"different value", model.EventFilter{FieldPath: "action", ExpectedValue: "created"}, false},
		{"nested", model.EventFilter{FieldPath: "$.release.tag_name", ExpectedValue: "v1.2.0"}, true},
		{"bool", model.EventFilter{FieldPath: "release.prerelease", ExpectedValue: "false"}, true},
		{"number", model.EventFilter{FieldPath: "release.id", ExpectedValue: "42"}, true},
		{"array index", model.EventFilter{FieldPath: "release.assets[0].name", ExpectedValue: "a.zip"}, true},
		{"array out of range", model.EventFilter{FieldPath: "release.assets[3].name", ExpectedValue: "a.zip"}, false},
		{"missing field", model.EventFilter{FieldPath: "$.sender.login", ExpectedValue: "octocat"}, false},
		{"object value", model.EventFilter{FieldPath: "release", ExpectedValue: ""}, false},
		{"null value", model.EventFilter{FieldPath: "repository.topics", ExpectedValue: "null"}, false},
		{"empty path", model.EventFilter{FieldPath: "$", ExpectedValue: ""}, false},
		{"broken index", model.EventFilter{FieldPath: "release.assets[x]", ExpectedValue: ""}, false},
	}

	v := decode(t, payload)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, tt.filter.Match(v)).Equal(tt.want)
		})
	}
}

func TestEventFilter_MatchMalformedPayload(t *testing.T) {
	f := model.EventFilter{FieldPath: "action", ExpectedValue: "published"}

	gt.False(t, f.Match(nil))
	gt.False(t, f.Match("published"))
	gt.False(t, f.Match([]any{"published"}))
}

func TestParseEventFilter(t *testing.T) {
	f, ok := model.ParseEventFilter("$.action=published")
	gt.True(t, ok)
	gt.Value(t, f.FieldPath).Equal("$.action")
	gt.Value(t, f.ExpectedValue).Equal("published")

	f, ok = model.ParseEventFilter("release.name=a=b")
	gt.True(t, ok)
	gt.Value(t, f.ExpectedValue).Equal("a=b")

	_, ok = model.ParseEventFilter("no-separator")
	gt.False(t, ok)

	_, ok = model.ParseEventFilter("=value")
	gt.False(t, ok)
}
