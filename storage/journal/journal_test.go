package journal

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stakefarm/core/events"
	"stakefarm/core/types"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestJournalChainsEntries(t *testing.T) {
	db := setupTestDB(t)
	j, err := New(db)
	require.NoError(t, err)

	var user [20]byte
	user[19] = 1
	j.Emit(events.FarmDeposited{PoolID: 0, User: user, Amount: big.NewInt(10), VirtualDelta: big.NewInt(15)})
	j.Emit(events.FarmHarvested{PoolID: 0, User: user, Recipient: user, Reward: big.NewInt(3)})

	seq, head := j.Head()
	require.Equal(t, uint64(2), seq)
	require.Len(t, head, 64)

	entries, err := j.List(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, events.TypeFarmDeposited, entries[0].Type)
	require.Equal(t, entries[0].Hash, entries[1].PrevHash)

	decoded, err := entries[0].Decode()
	require.NoError(t, err)
	require.Equal(t, "10", decoded.Attributes["amount"])
	require.NoError(t, j.Verify(context.Background()))

	// Reopening resumes the chain.
	resumed, err := New(db)
	require.NoError(t, err)
	seq2, head2 := resumed.Head()
	require.Equal(t, seq, seq2)
	require.Equal(t, head, head2)
}

func TestJournalDetectsTampering(t *testing.T) {
	db := setupTestDB(t)
	j, err := New(db)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := j.Append(context.Background(), &types.Event{Type: "farm.paused", Attributes: map[string]string{"tick": fmt.Sprint(i)}})
		require.NoError(t, err)
	}
	require.NoError(t, db.Model(&Entry{}).Where("seq = ?", 2).Update("attributes", `{"tick":"9"}`).Error)
	require.ErrorIs(t, j.Verify(context.Background()), ErrChainBroken)
}

func TestJournalRejectsEmptyInput(t *testing.T) {
	_, err := Open(" ")
	require.ErrorIs(t, err, ErrDSNRequired)

	j, err := New(setupTestDB(t))
	require.NoError(t, err)
	_, err = j.Append(context.Background(), &types.Event{})
	require.Error(t, err)
}
