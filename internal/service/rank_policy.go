package service

import "github.com/hanningtontech/nurse-connect-app-sub000/internal/models"

// RankPolicy 방 후보 필터. 기본은 모든 rank 허용
type RankPolicy interface {
	Accept(m *models.Match, playerRank int) bool
}

// AcceptAllRanks rank 무시
type AcceptAllRanks struct{}

func (AcceptAllRanks) Accept(*models.Match, int) bool {
	return true
}

// RankWindowPolicy 방 참가자 평균 rank 와의 차이가 MaxDifference 이내인 방만 허용
type RankWindowPolicy struct {
	MaxDifference int
}

func (p RankWindowPolicy) Accept(m *models.Match, playerRank int) bool {
	if len(m.PlayerIDs) == 0 {
		return true
	}

	diff := averageRank(m) - playerRank
	if diff < 0 {
		diff = -diff
	}
	return diff <= p.MaxDifference
}

// NewRankPolicy maxDifference 가 0 이하면 AcceptAllRanks
func NewRankPolicy(maxDifference int) RankPolicy {
	if maxDifference <= 0 {
		return AcceptAllRanks{}
	}
	return RankWindowPolicy{MaxDifference: maxDifference}
}

// averageRank 반올림한 평균
func averageRank(m *models.Match) int {
	total, count := 0, 0
	for _, id := range m.PlayerIDs {
		if p, ok := m.Players[id]; ok {
			total += p.Rank
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return (total + count/2) / count
}
