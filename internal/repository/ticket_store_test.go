package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

func ticketStores(t *testing.T) map[string]func(t *testing.T) TicketStore {
	return map[string]func(t *testing.T) TicketStore{
		"memory": func(t *testing.T) TicketStore {
			return NewMemoryTicketRepository()
		},
		"redis": func(t *testing.T) TicketStore {
			return NewRedisTicketRepository(setupRedisClient(t), zaptest.NewLogger(t))
		},
	}
}

func newTestTicket(id, playerID string, createdAt time.Time) *models.MatchmakingTicket {
	return &models.MatchmakingTicket{
		ID:                id,
		PlayerID:          playerID,
		PlayerName:        playerID,
		Topic:             testTopic,
		TargetPlayerCount: 2,
		Status:            models.QueueStatusWaiting,
		CreatedAt:         createdAt,
	}
}

func TestTicketStore_Lifecycle(t *testing.T) {
	for name, newStore := range ticketStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			base := time.Now()

			require.NoError(t, store.CreateTicket(ctx, newTestTicket("t2", "p2", base.Add(time.Second))))
			require.NoError(t, store.CreateTicket(ctx, newTestTicket("t1", "p1", base)))
			assert.ErrorIs(t, store.CreateTicket(ctx, newTestTicket("t1", "p1", base)), ErrAlreadyExists)

			waiting, err := store.FindWaitingTickets(ctx, testTopic, 2, 10)
			require.NoError(t, err)
			require.Len(t, waiting, 2)
			assert.Equal(t, "t1", waiting[0].ID)
			assert.Equal(t, "t2", waiting[1].ID)

			matchID := "match-1"
			updated, err := store.UpdateTicket(ctx, "t1", func(tk *models.MatchmakingTicket) error {
				tk.Status = models.QueueStatusMatched
				tk.MatchID = &matchID
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, models.QueueStatusMatched, updated.Status)

			waiting, err = store.FindWaitingTickets(ctx, testTopic, 2, 10)
			require.NoError(t, err)
			require.Len(t, waiting, 1)
			assert.Equal(t, "t2", waiting[0].ID)

			matched, err := store.ListTickets(ctx, models.QueueStatusMatched, 0)
			require.NoError(t, err)
			require.Len(t, matched, 1)
			require.NotNil(t, matched[0].MatchID)
			assert.Equal(t, "match-1", *matched[0].MatchID)

			require.NoError(t, store.DeleteTicket(ctx, "t1"))
			require.NoError(t, store.DeleteTicket(ctx, "t1"))

			_, err = store.GetTicket(ctx, "t1")
			assert.ErrorIs(t, err, ErrNotFound)

			matched, err = store.ListTickets(ctx, models.QueueStatusMatched, 0)
			require.NoError(t, err)
			assert.Empty(t, matched)
		})
	}
}

func TestTicketStore_UpdateSkip(t *testing.T) {
	for name, newStore := range ticketStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()

			require.NoError(t, store.CreateTicket(ctx, newTestTicket("t1", "p1", time.Now())))

			got, err := store.UpdateTicket(ctx, "t1", func(tk *models.MatchmakingTicket) error {
				tk.Status = models.QueueStatusExpired
				return ErrSkipUpdate
			})
			require.NoError(t, err)
			assert.Equal(t, models.QueueStatusWaiting, got.Status)

			_, err = store.UpdateTicket(ctx, "missing", func(tk *models.MatchmakingTicket) error { return nil })
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
