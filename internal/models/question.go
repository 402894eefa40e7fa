package models

import "time"

// DefaultQuestionTimeLimit 문제에 제한 시간이 없을 때 사용
const DefaultQuestionTimeLimit = 30 * time.Second

type Question struct {
	ID               string   `json:"id" yaml:"id"`
	Topic            Topic    `json:"topic" yaml:",inline"`
	Text             string   `json:"text" yaml:"text"`
	Options          []string `json:"options" yaml:"options"`
	CorrectIndex     int      `json:"correctIndex" yaml:"correctIndex"`
	TimeLimitSeconds int      `json:"timeLimitSeconds" yaml:"timeLimitSeconds"`
}

// QuestionView 클라이언트에 노출되는 문제 (정답 인덱스 제외)
type QuestionView struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	Index            int      `json:"index"`
	Total            int      `json:"total"`
}

// IsCorrect 선택지 정답 여부
func (q *Question) IsCorrect(option int) bool {
	return option == q.CorrectIndex
}

// ValidOption 선택지 인덱스 범위 확인
func (q *Question) ValidOption(option int) bool {
	return option >= 0 && option < len(q.Options)
}

// TimeLimit 문제 제한 시간 (없으면 fallback)
func (q *Question) TimeLimit(fallback time.Duration) time.Duration {
	if q.TimeLimitSeconds > 0 {
		return time.Duration(q.TimeLimitSeconds) * time.Second
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultQuestionTimeLimit
}

// Public 정답을 숨긴 뷰
func (q *Question) Public(index, total int) QuestionView {
	return QuestionView{
		ID:               q.ID,
		Text:             q.Text,
		Options:          append([]string(nil), q.Options...),
		TimeLimitSeconds: q.TimeLimitSeconds,
		Index:            index,
		Total:            total,
	}
}
