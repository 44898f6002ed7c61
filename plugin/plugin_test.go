package plugin

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var abTesting = Descriptor{
	ID:           "experimentation",
	Title:        "A/B Testing",
	Environments: []Environment{EnvDev, EnvProd},
	Event:        "experimentation",
}

func mustParse(t testing.TB, s string) *Document {
	t.Helper()
	doc, err := Parse([]byte(s))
	require.NoError(t, err)
	return doc
}

func encode(t testing.TB, d *Document) string {
	t.Helper()
	b, err := d.Encode()
	require.NoError(t, err)
	return string(b)
}

func pluginIDs(t testing.TB, d *Document) []string {
	t.Helper()
	entries, ok := d.Plugins()
	require.True(t, ok)
	var ids []string
	for _, e := range entries {
		id, _ := entryID(e)
		ids = append(ids, id)
	}
	return ids
}

func TestEnsure_EmptyPluginsGetsSingleEntry(t *testing.T) {
	doc := mustParse(t, `{"plugins": []}`)

	out, ch := Ensure([]Descriptor{abTesting}, doc)

	entries, ok := out.Plugins()
	require.True(t, ok)
	require.Len(t, entries, 1)
	var got Descriptor
	require.NoError(t, json.Unmarshal(entries[0], &got))
	assert.Equal(t, abTesting, got)
	assert.Equal(t, []string{"experimentation"}, ch.Added)
}

func TestEnsure_ReplacesInPlace(t *testing.T) {
	doc := mustParse(t, `{"plugins":[{"id":"a"},{"id":"experimentation","title":"Old"},{"id":"z"}]}`)

	out, ch := Ensure([]Descriptor{abTesting}, doc)

	assert.Equal(t, []string{"a", "experimentation", "z"}, pluginIDs(t, out))
	entries, _ := out.Plugins()
	var got map[string]any
	require.NoError(t, json.Unmarshal(entries[1], &got))
	assert.Equal(t, "A/B Testing", got["title"])
	assert.Equal(t, "experimentation", got["event"], "replacement is the full descriptor, not a field merge")
	assert.Equal(t, []string{"experimentation"}, ch.Replaced)
	assert.Empty(t, ch.Added)
}

func TestEnsure_ReplacementDropsStaleFields(t *testing.T) {
	doc := mustParse(t, `{"plugins":[{"id":"experimentation","title":"Old","url":"/legacy"}]}`)
	out, _ := Ensure([]Descriptor{abTesting}, doc)

	entries, _ := out.Plugins()
	assert.NotContains(t, string(entries[0]), "legacy")
}

func TestEnsure_IsPure(t *testing.T) {
	src := `{"plugins":[{"id":"experimentation","title":"Old"}]}`
	doc := mustParse(t, src)
	before := encode(t, doc)

	Ensure([]Descriptor{abTesting}, doc)

	assert.Equal(t, before, encode(t, doc))
}

func TestEnsure_MissingPluginsAppendedLast(t *testing.T) {
	doc := mustParse(t, `{"project":"wgw","host":"example.com"}`)
	out, _ := Ensure([]Descriptor{abTesting}, doc)
	assert.Equal(t, []string{"project", "host", "plugins"}, out.Keys())
}

func TestEnsure_NonArrayPluginsReset(t *testing.T) {
	doc := mustParse(t, `{"plugins":{"id":"x"},"host":"h"}`)
	out, ch := Ensure([]Descriptor{abTesting}, doc)

	assert.Equal(t, []string{"plugins", "host"}, out.Keys())
	assert.Equal(t, []string{"experimentation"}, pluginIDs(t, out))
	assert.Equal(t, []string{"experimentation"}, ch.Added)
}

func TestEnsure_KeepsForeignEntries(t *testing.T) {
	doc := mustParse(t, `{"plugins":["legacy",42,{"title":"no id"},{"id":7},null]}`)
	out, _ := Ensure([]Descriptor{abTesting}, doc)

	entries, _ := out.Plugins()
	require.Len(t, entries, 6)
	assert.JSONEq(t, `"legacy"`, string(entries[0]))
	assert.JSONEq(t, `42`, string(entries[1]))
	assert.JSONEq(t, `{"title":"no id"}`, string(entries[2]))
	assert.JSONEq(t, `{"id":7}`, string(entries[3]))
	assert.JSONEq(t, `null`, string(entries[4]))
}

func TestEnsure_DropsLaterDuplicates(t *testing.T) {
	doc := mustParse(t, `{"plugins":[{"id":"experimentation"},{"id":"b"},{"id":"experimentation","title":"dup"}]}`)
	out, ch := Ensure([]Descriptor{abTesting}, doc)

	assert.Equal(t, []string{"experimentation", "b"}, pluginIDs(t, out))
	assert.Equal(t, 1, ch.Dropped)
}

func TestEnsure_UnchangedWhenAlreadyCurrent(t *testing.T) {
	doc := mustParse(t, `{"plugins":[{"id":"experimentation","title":"A/B Testing","environments":["dev","prod"],"event":"experimentation"}]}`)
	out, ch := Ensure([]Descriptor{abTesting}, doc)

	assert.True(t, ch.Empty())
	assert.Equal(t, []string{"experimentation"}, ch.Unchanged)
	assert.Equal(t, encode(t, doc), encode(t, out))
}

func TestEncode_Format(t *testing.T) {
	doc := mustParse(t, `{ "b" : 1.50, "a":{"x":[ ]},  "t":"<b>&</b>" }`)
	want := "{\n  \"b\": 1.50,\n  \"a\": {\n    \"x\": []\n  },\n  \"t\": \"<b>&</b>\"\n}\n"
	assert.Equal(t, want, encode(t, doc))
}

func TestEncode_NewDescriptorNotHTMLEscaped(t *testing.T) {
	out, _ := Ensure([]Descriptor{{ID: "x", Title: "<A & B>"}}, mustParse(t, `{}`))
	assert.Contains(t, encode(t, out), `"title": "<A & B>"`)
}

func TestEncode_WhitespaceOnlyDifferencesAreEqual(t *testing.T) {
	a := mustParse(t, `{"plugins":[{"id":"a"}],"x":true}`)
	b := mustParse(t, "{\n\t\"plugins\" : [ { \"id\" : \"a\" } ] ,\n\t\"x\" : true\n}")
	assert.Equal(t, encode(t, a), encode(t, b))
}

func TestParse_Errors(t *testing.T) {
	for name, src := range map[string]string{
		"array":     `[1,2]`,
		"string":    `"x"`,
		"truncated": `{"plugins": [`,
		"garbage":   `not json`,
		"trailing":  `{"a":1} {"b":2}`,
		"empty":     ``,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}
	_, err := Parse([]byte(`[]`))
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestParse_RepeatedKeyKeepsFirstPositionLastValue(t *testing.T) {
	doc := mustParse(t, `{"a":1,"b":2,"a":3}`)
	assert.Equal(t, []string{"a", "b"}, doc.Keys())
	v, _ := doc.Get("a")
	assert.Equal(t, "3", string(v))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Experimentation.Validate())
	assert.Error(t, Descriptor{}.Validate())
	assert.Error(t, Descriptor{ID: "x", Environments: []Environment{"staging"}}.Validate())
	assert.Error(t, Descriptor{ID: "x", Environments: []Environment{EnvDev, EnvDev}}.Validate())

	assert.NoError(t, ValidateAll([]Descriptor{Experimentation, {ID: "other"}}))
	assert.Error(t, ValidateAll([]Descriptor{Experimentation, Experimentation}))
}

func TestExperimentation_EnvironmentsNotShared(t *testing.T) {
	saved := Experimentation.Environments[0]
	defer func() { Experimentation.Environments[0] = saved }()

	Experimentation.Environments[0] = "staging"
	assert.Equal(t, EnvDev, AllEnvironments[0])
	assert.True(t, AllEnvironments[0].Known())
}

// genDocument draws a config document with a plugins list over a small id
// alphabet so desired ids collide with existing ones.
func genDocument(t *rapid.T) *Document {
	ids := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d", "experimentation"}), 0, 6).Draw(t, "ids")
	var entries []string
	for i, id := range ids {
		entries = append(entries, fmt.Sprintf(`{"id":%q,"n":%d}`, id, i))
	}
	if rapid.Bool().Draw(t, "foreign") {
		entries = append(entries, `"foreign"`)
	}
	src := fmt.Sprintf(`{"project":"p","plugins":[%s]}`, strings.Join(entries, ","))
	doc, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse %s: %v", src, err)
	}
	return doc
}

func genDesired(t *rapid.T) []Descriptor {
	ids := rapid.SliceOfNDistinct(rapid.SampledFrom([]string{"a", "c", "experimentation", "new"}), 0, 3, rapid.ID[string]).Draw(t, "desired")
	out := make([]Descriptor, len(ids))
	for i, id := range ids {
		out[i] = Descriptor{ID: id, Title: "T " + id, Environments: []Environment{EnvLive}, Event: id}
	}
	return out
}

func TestEnsure_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := genDocument(t)
		desired := genDesired(t)

		once, _ := Ensure(desired, doc)
		twice, ch := Ensure(desired, once)

		a, _ := once.Encode()
		b, _ := twice.Encode()
		if string(a) != string(b) {
			t.Fatalf("second Ensure changed the document:\n%s\n%s", a, b)
		}
		if !ch.Empty() {
			t.Fatalf("second Ensure reported changes: %+v", ch)
		}
	})
}

func TestEnsure_PreservesUntouchedOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := genDocument(t)
		desired := genDesired(t)
		want := make(map[string]bool)
		for _, d := range desired {
			want[d.ID] = true
		}

		untouched := func(d *Document) []string {
			entries, _ := d.Plugins()
			var out []string
			for _, e := range entries {
				if id, ok := entryID(e); !ok || !want[id] {
					out = append(out, string(e))
				}
			}
			return out
		}

		out, _ := Ensure(desired, doc)
		before, after := untouched(doc), untouched(out)
		if fmt.Sprint(before) != fmt.Sprint(after) {
			t.Fatalf("untouched entries moved:\n%v\n%v", before, after)
		}
	})
}

func TestEnsure_EveryDesiredPresentOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := genDocument(t)
		desired := genDesired(t)

		out, _ := Ensure(desired, doc)
		entries, _ := out.Plugins()
		count := make(map[string]int)
		for _, e := range entries {
			if id, ok := entryID(e); ok {
				count[id]++
			}
		}
		for _, d := range desired {
			if count[d.ID] != 1 {
				t.Fatalf("id %q appears %d times", d.ID, count[d.ID])
			}
		}
	})
}

func TestEnsure_ChangesReport(t *testing.T) {
	tagger := Descriptor{ID: "tagger", Title: "Tagger", Environments: []Environment{EnvEdit}}

	tests := []struct {
		name    string
		doc     string
		desired []Descriptor
		want    Changes
	}{
		{
			name:    "empty document",
			doc:     `{}`,
			desired: []Descriptor{abTesting, tagger},
			want:    Changes{Added: []string{"experimentation", "tagger"}},
		},
		{
			name:    "one stale one current",
			doc:     `{"plugins":[{"id":"tagger","title":"Tagger","environments":["edit"],"event":""},{"id":"experimentation"}]}`,
			desired: []Descriptor{abTesting, tagger},
			want:    Changes{Replaced: []string{"experimentation"}, Unchanged: []string{"tagger"}},
		},
		{
			name:    "duplicates collapsed",
			doc:     `{"plugins":[{"id":"tagger"},{"id":"tagger"},{"id":"tagger"}]}`,
			desired: []Descriptor{tagger},
			want:    Changes{Replaced: []string{"tagger"}, Dropped: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := Ensure(tt.desired, mustParse(t, tt.doc))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Changes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
