package models

import (
	"fmt"
	"strings"
	"time"
)

type MatchStatus string

const (
	MatchStatusWaiting           MatchStatus = "waiting"
	MatchStatusActive            MatchStatus = "active"
	MatchStatusQuestionCompleted MatchStatus = "question_completed"
	MatchStatusCompleted         MatchStatus = "completed"
)

const (
	MinPlayersPerMatch = 2
	MaxPlayersPerMatch = 5
)

// Topic 문제 선택 기준 (course, unit, career)
type Topic struct {
	Course string `json:"course"`
	Unit   string `json:"unit"`
	Career string `json:"career"`
}

// Validate 빈 필드 확인
func (t Topic) Validate() error {
	if strings.TrimSpace(t.Course) == "" || strings.TrimSpace(t.Unit) == "" || strings.TrimSpace(t.Career) == "" {
		return fmt.Errorf("course, unit and career are required")
	}
	return nil
}

// Key 인덱스 키로 사용되는 문자열
func (t Topic) Key() string {
	return t.Course + "|" + t.Unit + "|" + t.Career
}

// PlayerState 참가자별 상태 (ready / answered / pressedNext / score 를 한 레코드로 관리)
type PlayerState struct {
	Name        string    `json:"name"`
	Rank        int       `json:"rank"`
	Ready       bool      `json:"ready"`
	Answered    bool      `json:"answered"`
	PressedNext bool      `json:"pressedNext"`
	Score       int       `json:"score"`
	Forfeited   bool      `json:"forfeited"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Match 퀴즈 방 하나의 권위 있는 상태
type Match struct {
	ID                string    `json:"id"`
	Topic             Topic     `json:"topic"`
	TargetPlayerCount int       `json:"targetPlayerCount"`
	CreatedAt         time.Time `json:"createdAt"`
	Revision          int64     `json:"revision"`

	PlayerIDs []string                `json:"playerIds"`
	Players   map[string]*PlayerState `json:"players"`

	QuestionIDs               []string `json:"questionIds"`
	CurrentQuestionIndex      int      `json:"currentQuestionIndex"`
	CurrentQuestionID         string   `json:"currentQuestionId,omitempty"`
	CurrentQuestionCompleted  bool     `json:"currentQuestionCompleted"`
	CurrentQuestionAnsweredBy *string  `json:"currentQuestionAnsweredBy,omitempty"`

	Status                MatchStatus `json:"status"`
	StartTime             *time.Time  `json:"startTime,omitempty"`
	QuestionStartTime     *time.Time  `json:"questionStartTime,omitempty"`
	QuestionDeadline      *time.Time  `json:"questionDeadline,omitempty"`
	NextQuestionReadyTime *time.Time  `json:"nextQuestionReadyTime,omitempty"`
	EndTime               *time.Time  `json:"endTime,omitempty"`
	WinnerID              *string     `json:"winnerId,omitempty"`
}

// NewMatch 대기 상태의 빈 방 생성
func NewMatch(id string, topic Topic, targetPlayerCount int, questionIDs []string, now time.Time) *Match {
	return &Match{
		ID:                id,
		Topic:             topic,
		TargetPlayerCount: targetPlayerCount,
		CreatedAt:         now,
		PlayerIDs:         []string{},
		Players:           make(map[string]*PlayerState),
		QuestionIDs:       append([]string(nil), questionIDs...),
		Status:            MatchStatusWaiting,
	}
}

// Clone deep copy (저장소가 공유 상태를 노출하지 않도록)
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.PlayerIDs = append([]string(nil), m.PlayerIDs...)
	c.QuestionIDs = append([]string(nil), m.QuestionIDs...)
	c.Players = make(map[string]*PlayerState, len(m.Players))
	for id, p := range m.Players {
		ps := *p
		c.Players[id] = &ps
	}
	c.CurrentQuestionAnsweredBy = cloneString(m.CurrentQuestionAnsweredBy)
	c.WinnerID = cloneString(m.WinnerID)
	c.StartTime = cloneTime(m.StartTime)
	c.QuestionStartTime = cloneTime(m.QuestionStartTime)
	c.QuestionDeadline = cloneTime(m.QuestionDeadline)
	c.NextQuestionReadyTime = cloneTime(m.NextQuestionReadyTime)
	c.EndTime = cloneTime(m.EndTime)
	return &c
}

// HasPlayer 참가 여부
func (m *Match) HasPlayer(playerID string) bool {
	_, ok := m.Players[playerID]
	return ok
}

// IsFull 목표 인원 도달 여부
func (m *Match) IsFull() bool {
	return len(m.PlayerIDs) >= m.TargetPlayerCount
}

// AddPlayer 참가자 추가 (join 시 자동 ready)
func (m *Match) AddPlayer(playerID, name string, rank int, now time.Time) {
	m.PlayerIDs = append(m.PlayerIDs, playerID)
	m.Players[playerID] = &PlayerState{
		Name:     name,
		Rank:     rank,
		Ready:    true,
		JoinedAt: now,
	}
}

// RemovePlayer 대기 중인 방에서 참가자 제거
func (m *Match) RemovePlayer(playerID string) {
	delete(m.Players, playerID)
	for i, id := range m.PlayerIDs {
		if id == playerID {
			m.PlayerIDs = append(m.PlayerIDs[:i], m.PlayerIDs[i+1:]...)
			return
		}
	}
}

// ActivePlayerIDs 기권하지 않은 참가자 (참가 순서 유지)
func (m *Match) ActivePlayerIDs() []string {
	ids := make([]string, 0, len(m.PlayerIDs))
	for _, id := range m.PlayerIDs {
		if p, ok := m.Players[id]; ok && !p.Forfeited {
			ids = append(ids, id)
		}
	}
	return ids
}

// AllReady 정원이 찼고 모두 ready 인지 (ready gate)
func (m *Match) AllReady() bool {
	if len(m.PlayerIDs) != m.TargetPlayerCount {
		return false
	}
	for _, id := range m.PlayerIDs {
		p, ok := m.Players[id]
		if !ok || !p.Ready {
			return false
		}
	}
	return true
}

// AllAnswered 남아있는 모든 참가자가 현재 문제에 정답을 냈는지
func (m *Match) AllAnswered() bool {
	active := m.ActivePlayerIDs()
	if len(active) == 0 {
		return false
	}
	for _, id := range active {
		if !m.Players[id].Answered {
			return false
		}
	}
	return true
}

// AllPressedNext 남아있는 모든 참가자가 다음 문제로 투표했는지
func (m *Match) AllPressedNext() bool {
	active := m.ActivePlayerIDs()
	if len(active) == 0 {
		return false
	}
	for _, id := range active {
		if !m.Players[id].PressedNext {
			return false
		}
	}
	return true
}

// ResetQuestionState 문제별 상태 초기화
func (m *Match) ResetQuestionState() {
	for _, p := range m.Players {
		p.Answered = false
		p.PressedNext = false
	}
	m.CurrentQuestionCompleted = false
	m.CurrentQuestionAnsweredBy = nil
	m.NextQuestionReadyTime = nil
}

// PlayerScores 점수 맵 (파생 뷰)
func (m *Match) PlayerScores() map[string]int {
	scores := make(map[string]int, len(m.Players))
	for id, p := range m.Players {
		scores[id] = p.Score
	}
	return scores
}

// InPlay 문제 진행 중인 상태인지
func (m *Match) InPlay() bool {
	return m.Status == MatchStatusActive || m.Status == MatchStatusQuestionCompleted
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
