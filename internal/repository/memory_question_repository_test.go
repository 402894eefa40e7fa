package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

const sampleQuestions = `
questions:
  - id: vs-001
    course: fundamentals
    unit: vital-signs
    career: rn
    text: Normal adult resting heart rate?
    options: ["40-60", "60-100", "100-140"]
    correctIndex: 1
    timeLimitSeconds: 20
  - id: vs-002
    course: fundamentals
    unit: vital-signs
    career: rn
    text: Normal adult respiratory rate?
    options: ["6-10", "12-20", "24-30"]
    correctIndex: 1
`

func TestParseQuestions(t *testing.T) {
	questions, err := ParseQuestions([]byte(sampleQuestions))
	require.NoError(t, err)
	require.Len(t, questions, 2)

	assert.Equal(t, "vs-001", questions[0].ID)
	assert.Equal(t, testTopic, questions[0].Topic)
	assert.Equal(t, 1, questions[0].CorrectIndex)
	assert.Equal(t, 20, questions[0].TimeLimitSeconds)
	assert.Equal(t, 0, questions[1].TimeLimitSeconds)
}

func TestParseQuestions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing id",
			yaml: "questions:\n  - course: a\n    unit: b\n    career: c\n    options: [x, y]\n",
		},
		{
			name: "missing topic",
			yaml: "questions:\n  - id: q1\n    options: [x, y]\n",
		},
		{
			name: "correct index out of range",
			yaml: "questions:\n  - id: q1\n    course: a\n    unit: b\n    career: c\n    options: [x, y]\n    correctIndex: 2\n",
		},
		{
			name: "single option",
			yaml: "questions:\n  - id: q1\n    course: a\n    unit: b\n    career: c\n    options: [x]\n",
		},
		{
			name: "duplicate id",
			yaml: "questions:\n  - id: q1\n    course: a\n    unit: b\n    career: c\n    options: [x, y]\n  - id: q1\n    course: a\n    unit: b\n    career: c\n    options: [x, y]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuestions([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadQuestionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleQuestions), 0o644))

	questions, err := LoadQuestionsFile(path)
	require.NoError(t, err)
	assert.Len(t, questions, 2)

	_, err = LoadQuestionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMemoryQuestionRepository_Draw(t *testing.T) {
	repo := NewMemoryQuestionRepository()
	for i := 0; i < 15; i++ {
		repo.Add(&models.Question{
			ID:           fmt.Sprintf("q%02d", i),
			Topic:        testTopic,
			Text:         "text",
			Options:      []string{"a", "b"},
			CorrectIndex: 0,
		})
	}
	repo.Add(&models.Question{ID: "other", Topic: models.Topic{Course: "x", Unit: "y", Career: "z"}, Options: []string{"a", "b"}})

	ctx := context.Background()

	drawn, err := repo.Draw(ctx, testTopic, 10)
	require.NoError(t, err)
	require.Len(t, drawn, 10)

	seen := make(map[string]bool)
	for _, q := range drawn {
		assert.Equal(t, testTopic, q.Topic)
		assert.False(t, seen[q.ID], "duplicate question %s", q.ID)
		seen[q.ID] = true
	}

	// 문제가 부족하면 있는 만큼만
	few, err := repo.Draw(ctx, models.Topic{Course: "x", Unit: "y", Career: "z"}, 10)
	require.NoError(t, err)
	assert.Len(t, few, 1)

	none, err := repo.Draw(ctx, models.Topic{Course: "none", Unit: "y", Career: "z"}, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryQuestionRepository_FindQuestion(t *testing.T) {
	repo := NewMemoryQuestionRepository(&models.Question{ID: "q1", Topic: testTopic, Options: []string{"a", "b"}})
	ctx := context.Background()

	q, err := repo.FindQuestion(ctx, "q1")
	require.NoError(t, err)

	// 반환값 수정이 저장소에 영향 없음
	q.Options[0] = "changed"
	again, err := repo.FindQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Options[0])

	_, err = repo.FindQuestion(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadQuestionsFile_BundledCatalog(t *testing.T) {
	questions, err := LoadQuestionsFile(filepath.Join("..", "..", "questions.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, questions)

	repo := NewMemoryQuestionRepository(questions...)
	drawn, err := repo.Draw(context.Background(), models.Topic{
		Course: "fundamentals", Unit: "vital-signs", Career: "rn",
	}, 10)
	require.NoError(t, err)
	assert.Len(t, drawn, 6)
}
