package room

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SlpAus/tictac-duel-backend/internal/platform/database"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis 用进程内Redis替换全局RDB，测试之间互不干扰。
func setupTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	prev := database.RDB
	database.RDB = client
	t.Cleanup(func() {
		database.RDB = prev
		client.Close()
	})
	return mr
}

// seedRoom 直接写入一个房间的初始状态。
func seedRoom(t *testing.T, code string, fn func(r *Room)) {
	t.Helper()
	_, err := mutate(code, func(r *Room) bool {
		fn(r)
		return true
	})
	require.NoError(t, err)
}

func TestJoinCreatesRoomWithTTL(t *testing.T) {
	mr := setupTestRedis(t)

	r, assigned, soft, err := Join("lobby", JoinParams{Player: PlayerInfo{ID: "alice", Name: "alice"}, PreferredRole: "auto"})
	require.NoError(t, err)
	require.Nil(t, soft)
	assert.Equal(t, RoleX, assigned)
	assert.Equal(t, "alice", r.SeatX.Identity)

	snap, err := Snapshot("lobby")
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.SeatX.Identity)
	assert.Equal(t, StateTTL, mr.TTL(StateKey("lobby")))
}

func TestSnapshotUnknownRoomIsFresh(t *testing.T) {
	mr := setupTestRedis(t)

	snap, err := Snapshot("nowhere")
	require.NoError(t, err)
	assert.Equal(t, NewRoom(), snap)
	// 只读查询不落盘
	assert.False(t, mr.Exists(StateKey("nowhere")))
}

func TestMoveOnEmptyRoomPersistsBinding(t *testing.T) {
	setupTestRedis(t)

	// 空房间的第一步棋：落子失败（缺少对手），但X绑定要落盘
	_, derr, err := ApplyMove("lobby", "alice", 4)
	require.NoError(t, err)
	require.NotNil(t, derr)
	assert.Equal(t, CodeNeedOpponent, derr.Code)

	snap, err := Snapshot("lobby")
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.SeatX.Identity)
	assert.Equal(t, 0, snap.Turn)
	assert.Equal(t, NewRoom().Board, snap.Board)

	// 后来者拿不到X，即使显式请求
	_, assigned, _, err := Join("lobby", JoinParams{Player: PlayerInfo{ID: "bob"}, PreferredRole: "X"})
	require.NoError(t, err)
	assert.Equal(t, RoleO, assigned)
}

func TestConcurrentMovesOnSameCell(t *testing.T) {
	setupTestRedis(t)
	seedRoom(t, "duel", func(r *Room) {
		r.SeatX.Identity = "alice"
		r.SeatO.Identity = "bob"
	})

	type result struct {
		derr *Error
		err  error
	}
	players := []string{"alice", "bob"}
	results := make([]result, len(players))

	var wg sync.WaitGroup
	for i, id := range players {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, derr, err := ApplyMove("duel", id, 4)
			results[i] = result{derr: derr, err: err}
		}(i, id)
	}
	wg.Wait()

	// alice的首步总是合法；bob要么抢跑（NotYourTurn）要么踩到已占格子
	require.NoError(t, results[0].err)
	assert.Nil(t, results[0].derr)
	require.NoError(t, results[1].err)
	require.NotNil(t, results[1].derr)
	assert.Contains(t, []Code{CodeNotYourTurn, CodeCellOccupied}, results[1].derr.Code)

	snap, err := Snapshot("duel")
	require.NoError(t, err)
	assert.Equal(t, CellX, snap.Board[4])
	assert.Equal(t, 1, snap.Turn)
	assert.Equal(t, RoleO, snap.Next)
}

func TestConcurrentClaimExactlyOnce(t *testing.T) {
	setupTestRedis(t)
	seedRoom(t, "duel", func(r *Room) {
		r.SeatX.Identity = "ghost"
		r.SeatO = Seat{Identity: "bob", Authenticated: true}
		r.Winner = WinnerX
		r.RewardDistributed = true
		r.Claim = &Claim{Amount: 2, Role: RoleX, ExpiresAt: time.Now().Add(time.Hour).Unix()}
	})

	type result struct {
		claimed *Claim
		derr    *Error
		err     error
	}
	const claimers = 4
	results := make([]result, claimers)

	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := PlayerInfo{ID: fmt.Sprintf("winner-%d", i), Authenticated: true}
			claimed, _, derr, err := ClaimAndClear("duel", caller)
			results[i] = result{claimed: claimed, derr: derr, err: err}
		}(i)
	}
	wg.Wait()

	won := 0
	for _, res := range results {
		require.NoError(t, res.err)
		if res.claimed != nil {
			won++
			assert.Nil(t, res.derr)
			assert.Equal(t, 2, res.claimed.Amount)
			assert.Equal(t, RoleX, res.claimed.Role)
		} else {
			require.NotNil(t, res.derr)
			assert.Equal(t, CodeNoClaim, res.derr.Code)
		}
	}
	assert.Equal(t, 1, won, "奖励只能被取走一次")

	snap, err := Snapshot("duel")
	require.NoError(t, err)
	assert.Nil(t, snap.Claim)
}

func TestMarkChargedGuards(t *testing.T) {
	setupTestRedis(t)
	seedRoom(t, "duel", func(r *Room) {
		r.SeatX = Seat{Identity: "alice", Authenticated: true, Selection: true, Effective: true}
		r.SeatO = Seat{Identity: "bob", Authenticated: true}
	})

	r, err := MarkCharged("duel", RoleX, "alice")
	require.NoError(t, err)
	assert.True(t, r.SeatX.Charged)

	// 身份不匹配时安静放弃
	r, err = MarkCharged("duel", RoleO, "mallory")
	require.NoError(t, err)
	assert.False(t, r.SeatO.Charged)

	// 回滚生效标志，选择保留
	r, err = RevertEffective("duel", RoleX, "alice")
	require.NoError(t, err)
	assert.False(t, r.SeatX.Effective)
	assert.True(t, r.SeatX.Selection)
}
