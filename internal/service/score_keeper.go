package service

import (
	"time"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

// ComputeWinner 최고 점수 플레이어. 최고 점수가 동점이거나 점수가 없으면 nil (무승부)
func ComputeWinner(scores map[string]int) *string {
	var (
		winner string
		best   int
		tied   bool
		found  bool
	)

	for id, score := range scores {
		switch {
		case !found || score > best:
			winner, best, tied, found = id, score, false, true
		case score == best:
			tied = true
		}
	}

	if !found || tied {
		return nil
	}
	return &winner
}

// endMatch 경기 종료 처리. 기권한 플레이어는 승자 후보에서 제외
func endMatch(m *models.Match, now time.Time) {
	scores := make(map[string]int, len(m.Players))
	for _, id := range m.ActivePlayerIDs() {
		scores[id] = m.Players[id].Score
	}

	m.Status = models.MatchStatusCompleted
	m.EndTime = &now
	m.WinnerID = ComputeWinner(scores)
	m.QuestionDeadline = nil
	m.NextQuestionReadyTime = nil
}
