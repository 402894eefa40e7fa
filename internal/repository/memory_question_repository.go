package repository

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

// questionFile YAML 문제 파일 형식
type questionFile struct {
	Questions []*models.Question `yaml:"questions"`
}

// MemoryQuestionRepository 메모리/YAML 기반 QuestionCatalog
type MemoryQuestionRepository struct {
	mu        sync.RWMutex
	questions map[string]*models.Question
	byTopic   map[models.Topic][]string
	rng       *rand.Rand
	rngMu     sync.Mutex
}

func NewMemoryQuestionRepository(questions ...*models.Question) *MemoryQuestionRepository {
	r := &MemoryQuestionRepository{
		questions: make(map[string]*models.Question),
		byTopic:   make(map[models.Topic][]string),
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
	for _, q := range questions {
		r.Add(q)
	}
	return r
}

// LoadQuestionsFile YAML 파일에서 문제 목록 읽기
func LoadQuestionsFile(path string) ([]*models.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions file: %w", err)
	}
	return ParseQuestions(data)
}

// ParseQuestions YAML 파싱 및 검증
func ParseQuestions(data []byte) ([]*models.Question, error) {
	var file questionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse questions: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Questions))
	for i, q := range file.Questions {
		if q == nil || q.ID == "" {
			return nil, fmt.Errorf("question %d: id is required", i)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("question %s: duplicate id", q.ID)
		}
		seen[q.ID] = struct{}{}
		if err := q.Topic.Validate(); err != nil {
			return nil, fmt.Errorf("question %s: %w", q.ID, err)
		}
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("question %s: at least two options are required", q.ID)
		}
		if !q.ValidOption(q.CorrectIndex) {
			return nil, fmt.Errorf("question %s: correctIndex %d out of range", q.ID, q.CorrectIndex)
		}
	}
	return file.Questions, nil
}

// Add 문제 등록 (같은 ID 는 교체)
func (r *MemoryQuestionRepository) Add(q *models.Question) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.questions[q.ID]; ok {
		ids := r.byTopic[old.Topic]
		for i, id := range ids {
			if id == q.ID {
				r.byTopic[old.Topic] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}

	stored := *q
	stored.Options = append([]string(nil), q.Options...)
	r.questions[q.ID] = &stored
	r.byTopic[q.Topic] = append(r.byTopic[q.Topic], q.ID)
}

// Draw 토픽에서 무작위로 최대 count 개 선택
func (r *MemoryQuestionRepository) Draw(ctx context.Context, topic models.Topic, count int) ([]*models.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	ids := append([]string(nil), r.byTopic[topic]...)
	r.mu.RUnlock()

	r.rngMu.Lock()
	r.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	r.rngMu.Unlock()

	if count >= 0 && len(ids) > count {
		ids = ids[:count]
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	questions := make([]*models.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := r.questions[id]; ok {
			c := *q
			c.Options = append([]string(nil), q.Options...)
			questions = append(questions, &c)
		}
	}
	return questions, nil
}

// FindQuestion ID로 조회
func (r *MemoryQuestionRepository) FindQuestion(ctx context.Context, id string) (*models.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *q
	c.Options = append([]string(nil), q.Options...)
	return &c, nil
}
