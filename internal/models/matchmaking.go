package models

import "time"

type MatchmakingQueueStatus string

const (
	QueueStatusWaiting MatchmakingQueueStatus = "waiting"
	QueueStatusMatched MatchmakingQueueStatus = "matched"
	QueueStatusExpired MatchmakingQueueStatus = "expired"
)

// MatchmakingTicket 방을 바로 찾지 못한 플레이어의 대기열 항목
type MatchmakingTicket struct {
	ID                string                 `json:"id"`
	PlayerID          string                 `json:"playerId"`
	PlayerName        string                 `json:"playerName"`
	PlayerRank        int                    `json:"playerRank"`
	Topic             Topic                  `json:"topic"`
	TargetPlayerCount int                    `json:"targetPlayerCount"`
	Status            MatchmakingQueueStatus `json:"status"`
	MatchID           *string                `json:"matchId,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
	MatchedAt         *time.Time             `json:"matchedAt,omitempty"`
}

// Clone deep copy
func (t *MatchmakingTicket) Clone() *MatchmakingTicket {
	if t == nil {
		return nil
	}
	c := *t
	c.MatchID = cloneString(t.MatchID)
	c.MatchedAt = cloneTime(t.MatchedAt)
	return &c
}

// Expired 대기 시간 초과 여부
func (t *MatchmakingTicket) Expired(now time.Time, timeout time.Duration) bool {
	return t.Status == QueueStatusWaiting && now.Sub(t.CreatedAt) >= timeout
}
