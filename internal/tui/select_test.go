package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/qidianmeta/internal/book"
)

func testCandidates() []book.ScoredCandidate {
	return []book.ScoredCandidate{
		{
			Candidate:       book.Candidate{NativeID: "1001569853", Title: "一世之尊", Authors: []string{"爱潜水的乌贼"}, SearchRank: 0},
			Score:           0.91,
			TitleSimilarity: 1, AuthorSimilarity: 0.7,
		},
		{
			Candidate:       book.Candidate{NativeID: "1035420986", Title: "一世之尊", Authors: []string{"书友甲"}, SearchRank: 1},
			Score:           0.90,
			TitleSimilarity: 1, AuthorSimilarity: 0.67,
		},
	}
}

func withProgram(t *testing.T, fn func(tea.Model) (tea.Model, error)) {
	t.Helper()
	orig := runProgram
	runProgram = fn
	t.Cleanup(func() { runProgram = orig })
}

func TestSelectEmptySkips(t *testing.T) {
	withProgram(t, func(tea.Model) (tea.Model, error) {
		t.Fatal("program should not run without candidates")
		return nil, nil
	})

	result, err := Select("一世之尊", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionSkipped, result.Action)
}

func TestSelectEnterPicksHighlighted(t *testing.T) {
	withProgram(t, func(m tea.Model) (tea.Model, error) {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		return m, nil
	})

	result, err := Select("一世之尊", testCandidates())
	require.NoError(t, err)
	require.Equal(t, ActionSelected, result.Action)
	require.NotNil(t, result.Selection)
	assert.Equal(t, "1035420986", result.Selection.NativeID)
}

func TestSelectSkipKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("s")},
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyEsc},
	} {
		t.Run(key.String(), func(t *testing.T) {
			withProgram(t, func(m tea.Model) (tea.Model, error) {
				m, _ = m.Update(key)
				return m, nil
			})

			result, err := Select("一世之尊", testCandidates())
			require.NoError(t, err)
			assert.Equal(t, ActionSkipped, result.Action)
			assert.Nil(t, result.Selection)
		})
	}
}

func TestSelectProgramError(t *testing.T) {
	withProgram(t, func(tea.Model) (tea.Model, error) {
		return nil, errors.New("no tty")
	})

	_, err := Select("一世之尊", testCandidates())
	require.Error(t, err)
}

func TestModelViewShowsQueryAndCandidates(t *testing.T) {
	items := []candidateItem{{ScoredCandidate: testCandidates()[0]}}
	m := newModel("一世之尊", items)

	view := m.View()
	assert.Contains(t, view, "一世之尊")
	assert.Contains(t, view, "qidian:1001569853")
	assert.Contains(t, view, "score 0.91")
}

func TestTruncateCountsCellWidth(t *testing.T) {
	assert.Equal(t, "一世之尊", truncate("一世之尊", 8))
	assert.Equal(t, "一世...", truncate("一世之尊外传", 8))
	assert.Equal(t, "abc", truncate("  abc  ", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 72, clamp(72, 0, 40))
	assert.Equal(t, 50, clamp(72, 50, 40))
	assert.Equal(t, 40, clamp(72, 10, 40))
}
