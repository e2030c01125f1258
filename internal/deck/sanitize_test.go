package deck

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const twoSlides = `{"slides":[{"title":"Intro","content":["a","b"]},{"title":"Outro","content":["c"]}]}`

func TestSanitize_PlainObject(t *testing.T) {
	tree, err := Sanitize(twoSlides)
	require.NoError(t, err)
	slides, ok := tree["slides"].([]any)
	require.True(t, ok)
	require.Len(t, slides, 2)
}

func TestSanitize_WrappingDoesNotChangeResult(t *testing.T) {
	want, err := Sanitize(twoSlides)
	require.NoError(t, err)

	wrapped := []string{
		"Here is your deck:\n```json\n" + twoSlides + "\n```",
		"Here is your deck:\n```JSON\n" + twoSlides + "\n```\nEnjoy!",
		"```\n" + twoSlides + "\n```",
		"Sure! " + twoSlides + " Let me know if you need more.",
		"  \n" + twoSlides + "\n\n",
	}
	for _, raw := range wrapped {
		got, err := Sanitize(raw)
		require.NoError(t, err, raw)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("Sanitize(%q) mismatch (-want +got):\n%s", raw, diff)
		}
	}
}

func TestSanitize_BracesInsideStrings(t *testing.T) {
	raw := `Result: {"slides":[{"title":"Sets {a, b}","content":["use \"}\" carefully","x { y"]}]} trailing {note}`

	tree, err := Sanitize(raw)
	require.NoError(t, err)

	slides := tree["slides"].([]any)
	first := slides[0].(map[string]any)
	require.Equal(t, "Sets {a, b}", first["title"])
	require.Equal(t, []any{`use "}" carefully`, "x { y"}, first["content"])
}

func TestSanitize_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{name: "prose only", raw: "I am sorry, I cannot help with that request.", reason: "invalid_json"},
		{name: "empty", raw: "", reason: "invalid_json"},
		{name: "unclosed object", raw: `here {"slides":[{"title":"x"}`, reason: "invalid_json"},
		{name: "array root", raw: `[{"title":"x"}]`, reason: "not_an_object"},
		{name: "missing slides", raw: `{"title":"x"}`, reason: "missing_slides"},
		{name: "slides not array", raw: `{"slides":"none"}`, reason: "missing_slides"},
		{name: "two objects in fence", raw: "```json\n{\"slides\":[]} {\"slides\":[]}\n```", reason: "multiple_values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Sanitize(tt.raw)
			require.Nil(t, tree)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformed))

			var me *MalformedError
			require.True(t, errors.As(err, &me))
			require.Equal(t, tt.reason, me.Reason)
		})
	}
}

func TestFencedBlock(t *testing.T) {
	body, ok := fencedBlock("text ```json\n{\"a\":1}\n``` more")
	require.True(t, ok)
	require.Equal(t, `{"a":1}`, body)

	body, ok = fencedBlock("```{\"a\":1}```")
	require.True(t, ok)
	require.Equal(t, `{"a":1}`, body)

	_, ok = fencedBlock("```json\n{\"a\":1}")
	require.False(t, ok)

	_, ok = fencedBlock("no fence here")
	require.False(t, ok)
}

func TestBalancedObject(t *testing.T) {
	obj, ok := balancedObject(`x {"a":{"b":"}"}} y`)
	require.True(t, ok)
	require.Equal(t, `{"a":{"b":"}"}}`, obj)

	obj, ok = balancedObject(`x {"a":"\\"} y`)
	require.True(t, ok)
	require.Equal(t, `{"a":"\\"}`, obj)

	_, ok = balancedObject("no braces")
	require.False(t, ok)
}
