package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func sampleRecord() *Record {
	published := time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC)
	return &Record{
		NativeID:    "1015209014",
		Title:       "我们生活在南京",
		Authors:     []string{"天瑞说符"},
		Tags:        []string{"科幻", "未来世界", "科幻"},
		Description: ptr("<p>简介</p>"),
		PublishDate: &published,
		Series:      &Series{Name: "南京", Index: ptr(1.0)},
		Rating:      ptr(4.5),
		CoverURL:    ptr("https://bookcover.yuewen.com/qdbimg/349573/1015209014"),
		Publisher:   "起点中文网",
		Language:    "zh_CN",
		URL:         "https://www.qidian.com/book/1015209014/",
	}
}

func TestAssembleOverwritesTitleAndAuthors(t *testing.T) {
	a := NewAssembler(DefaultPrecedence())

	out := a.Assemble(Existing{Title: "我们生活在南京 (txt)", Authors: []string{"Unknown"}}, sampleRecord(), nil)
	require.NotNil(t, out)

	assert.Equal(t, "我们生活在南京", out.Title)
	assert.Equal(t, []string{"天瑞说符"}, out.Authors)
	assert.Equal(t, "qidian:1015209014", out.Identifier)
	assert.Equal(t, map[string]string{
		"qidian": "1015209014",
		"url":    "https://www.qidian.com/book/1015209014/",
	}, out.Identifiers)
	assert.Equal(t, []string{"科幻", "未来世界"}, out.Tags)
	assert.Equal(t, "<p>简介</p>", out.Comments)
	assert.Equal(t, "南京", out.Series)
	require.NotNil(t, out.SeriesIndex)
	assert.Equal(t, 1.0, *out.SeriesIndex)
	assert.Equal(t, "起点中文网", out.Publisher)
	assert.Empty(t, out.Cover)
}

func TestAssembleFillBlanksOnly(t *testing.T) {
	a := NewAssembler(Precedence{OverwriteTitleAuthor: false})

	out := a.Assemble(Existing{Title: "My Title"}, sampleRecord(), nil)
	require.NotNil(t, out)

	assert.Equal(t, "My Title", out.Title)
	assert.Equal(t, []string{"天瑞说符"}, out.Authors, "blank authors are filled from the catalog")
	assert.Equal(t, "qidian:1015209014", out.Identifier, "empty scheme falls back to qidian")
	_, hasURL := out.Identifiers["url"]
	assert.False(t, hasURL)
}

func TestAssembleCustomScheme(t *testing.T) {
	a := NewAssembler(Precedence{IdentifierScheme: "qd"})

	out := a.Assemble(Existing{}, sampleRecord(), nil)
	assert.Equal(t, "qd:1015209014", out.Identifier)
	assert.Equal(t, "1015209014", out.Identifiers["qd"])
}

func TestAssembleKeepsAbsentFieldsAbsent(t *testing.T) {
	a := NewAssembler(DefaultPrecedence())
	rec := &Record{NativeID: "1", Title: "T", Authors: []string{"A"}}

	out := a.Assemble(Existing{}, rec, nil)
	require.NotNil(t, out)
	assert.Empty(t, out.Comments)
	assert.Nil(t, out.PubDate)
	assert.Nil(t, out.Rating)
	assert.Empty(t, out.Series)
	assert.Nil(t, out.SeriesIndex)
}

func TestAssembleWithCover(t *testing.T) {
	a := NewAssembler(DefaultPrecedence())
	cover := &CoverAsset{NativeID: "1015209014", ContentHash: "abc", Bytes: []byte{0xff, 0xd8}}

	out := a.Assemble(Existing{}, sampleRecord(), cover)
	assert.Equal(t, []byte{0xff, 0xd8}, out.Cover)
	assert.Equal(t, "abc", out.CoverHash)
}

func TestAssembleNilRecord(t *testing.T) {
	assert.Nil(t, NewAssembler(DefaultPrecedence()).Assemble(Existing{}, nil, nil))
}

func TestMergeTags(t *testing.T) {
	got := MergeTags([]string{"a", " b ", ""}, []string{"b", "c", "a"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
