package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

func TestRankWindowPolicy_Accept(t *testing.T) {
	now := time.Now()
	room := models.NewMatch("m1", testTopic, 5, nil, now)
	room.AddPlayer("a", "A", 10, now)
	room.AddPlayer("b", "B", 20, now) // 평균 15

	tests := []struct {
		name       string
		maxDiff    int
		playerRank int
		expected   bool
	}{
		{"Same as average", 5, 15, true},
		{"Upper edge", 5, 20, true},
		{"Lower edge", 5, 10, true},
		{"Too high", 5, 21, false},
		{"Too low", 5, 9, false},
		{"Zero window exact", 0, 15, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := RankWindowPolicy{MaxDifference: tt.maxDiff}
			assert.Equal(t, tt.expected, policy.Accept(room, tt.playerRank))
		})
	}
}

func TestRankWindowPolicy_EmptyRoomAcceptsAnyone(t *testing.T) {
	room := models.NewMatch("m1", testTopic, 2, nil, time.Now())
	assert.True(t, RankWindowPolicy{MaxDifference: 1}.Accept(room, 1000))
}

func TestNewRankPolicy(t *testing.T) {
	assert.IsType(t, AcceptAllRanks{}, NewRankPolicy(0))
	assert.IsType(t, AcceptAllRanks{}, NewRankPolicy(-1))
	assert.Equal(t, RankWindowPolicy{MaxDifference: 100}, NewRankPolicy(100))

	room := models.NewMatch("m1", testTopic, 2, nil, time.Now())
	room.AddPlayer("a", "A", 0, time.Now())
	assert.True(t, NewRankPolicy(0).Accept(room, 9999))
}
