package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/receval/core"
)

func TestTemplate_Render(t *testing.T) {
	tpl := Template{Instruction: "history {inters}; again {inters}; query {q}"}
	assert.Equal(t, []string{"inters", "q"}, tpl.Placeholders())

	out, err := tpl.Render(map[string]string{"inters": "<a_1>, <a_2>", "q": "{not a field}"})
	require.NoError(t, err)
	assert.Equal(t, "history <a_1>, <a_2>; again <a_1>, <a_2>; query {not a field}", out)

	_, err = tpl.Render(map[string]string{"inters": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"q"`)
}

func TestFrame(t *testing.T) {
	out := Frame("do it")
	assert.True(t, strings.HasSuffix(out, "### Response:"))
	assert.Contains(t, out, "### Instruction:\ndo it\n\n")
	assert.Equal(t, 1, strings.Count(out, ResponseMarker))
}

func TestRegistry_IDs(t *testing.T) {
	r := Default()
	n := len(seqRecTemplates)

	ids, err := r.IDs("SeqRec", "all")
	require.NoError(t, err)
	assert.Len(t, ids, n)
	assert.Equal(t, 0, ids[0])
	assert.Equal(t, n-1, ids[n-1])

	ids, err = r.IDs("seqrec", "0, 2,1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, ids)

	for _, bad := range []string{"a", "1,,2", "-1", "99"} {
		_, err = r.IDs("seqrec", bad)
		require.Error(t, err, bad)
		assert.True(t, core.IsInvalidConfig(err), bad)
	}

	_, err = r.IDs("nope", "all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seqrec")
}

func TestRegistry_BuiltinTemplatesRender(t *testing.T) {
	fields := map[string]string{
		"inters":                 "<a_1>",
		"explicit_preference":    "likes puzzles",
		"user_related_intention": "a co-op game",
		"item_related_intention": "a puzzle game",
	}
	r := Default()
	for _, task := range r.Tasks() {
		ts, err := r.Templates(task)
		require.NoError(t, err)
		for i, tpl := range ts {
			_, err := tpl.Render(fields)
			assert.NoError(t, err, "%s/%d", task, i)
		}
	}
}

func TestRegistry_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
prompts:
  SeqRec:
    - instruction: "next after {inters}?"
      response: "{item}"
  custom:
    - instruction: "custom {inters}"
`), 0o644))

	r := Default()
	require.NoError(t, r.LoadFile(path))

	tpl, err := r.Get("seqrec", 0)
	require.NoError(t, err)
	assert.Equal(t, "next after {inters}?", tpl.Instruction)
	_, err = r.Get("seqrec", 1)
	require.Error(t, err)

	_, err = r.Get("custom", 0)
	require.NoError(t, err)

	require.Error(t, r.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}
