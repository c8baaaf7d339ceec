package room

import (
	"fmt"
	"time"

	"github.com/SlpAus/tictac-duel-backend/internal/platform/database"
	"github.com/redis/go-redis/v9"
)

// repository把engine.go的纯转换包装成对单个房间键的原子操作。
// 对外只暴露具名操作，调用方永远看不到读-改-写的中间步骤，
// 也看不到乐观重试循环。

// txMaxRetries 是WATCH事务在键竞争下的最大重试次数。
// 冲突的写入者会在新的已提交状态上重跑转换，得到精确的领域错误。
const txMaxRetries = 8

// mutate 在一个WATCH事务中执行fn。
// fn返回true表示需要把房间写回并刷新TTL，返回false表示只读结果。
// 返回的Room是fn执行后的内存状态。
func mutate(code string, fn func(r *Room) bool) (*Room, error) {
	key := StateKey(code)

	for i := 0; i < txMaxRetries; i++ {
		var result *Room

		err := database.RDB.Watch(database.Ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(database.Ctx, key).Result()
			if err != nil && err != redis.Nil {
				return fmt.Errorf("无法读取房间 %s: %w", code, err)
			}

			r := FromHash(fields)
			commit := fn(r)
			result = r

			if !commit {
				return nil
			}

			// 所有字段整体写回，并发修改会让整个事务失败重跑
			_, err = tx.TxPipelined(database.Ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(database.Ctx, key, r.ToHash())
				pipe.Expire(database.Ctx, key, StateTTL)
				return nil
			})
			if err != nil {
				return fmt.Errorf("无法写回房间 %s: %w", code, err)
			}
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue // 键被并发修改，基于新状态重跑
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	return nil, fmt.Errorf("房间 %s 竞争过于激烈，事务重试次数耗尽", code)
}

// Snapshot 读取一个房间的当前状态。
// 只用于只读查询，键不存在时返回默认空房间（不落盘）。
func Snapshot(code string) (*Room, error) {
	fields, err := database.RDB.HGetAll(database.Ctx, StateKey(code)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("无法读取房间 %s: %w", code, err)
	}
	return FromHash(fields), nil
}

// Join 原子地执行入座/重申，返回分配到的席位与可能的软错误。
func Join(code string, p JoinParams) (*Room, Role, *Error, error) {
	var assigned Role
	var soft *Error

	r, err := mutate(code, func(r *Room) bool {
		assigned, soft = join(r, p)
		// 旁观者不改变房间状态，但首次join仍要把空房间落盘
		return assigned != "" || r.Turn == 0
	})
	if err != nil {
		return nil, "", nil, err
	}
	return r, assigned, soft, nil
}

// ApplyMove 原子地校验并落子。
func ApplyMove(code string, identity string, cell int) (*Room, *Error, error) {
	var derr *Error

	r, err := mutate(code, func(r *Room) bool {
		vacant := r.SeatX.Identity == "" && r.SeatO.Identity == ""
		derr = applyMove(r, identity, cell)
		if derr == nil {
			return true
		}
		// 空房间的第一步棋把落子者绑定为X：即使落子本身因缺少对手失败，
		// 房间的惰性创建和X绑定也要落盘，后来者只能拿到O
		return vacant && r.SeatX.Identity == identity
	})
	if err != nil {
		return nil, nil, err
	}
	return r, derr, nil
}

// Reset 原子地重开一局。
func Reset(code string, identity string) (*Room, *Error, error) {
	var derr *Error

	r, err := mutate(code, func(r *Room) bool {
		derr = reset(r, identity)
		return derr == nil
	})
	if err != nil {
		return nil, nil, err
	}
	return r, derr, nil
}

// AuthPing 原子地刷新调用者席位的认证状态并重算生效模式。
func AuthPing(code string, p PlayerInfo) (*Room, error) {
	r, err := mutate(code, func(r *Room) bool {
		authPing(r, p)
		return true
	})
	return r, err
}

// SetSelection 原子地切换一个席位的大佬模式选择。
func SetSelection(code string, p PlayerInfo, enable bool, daddyAllowed bool) (*Room, *Error, error) {
	var derr *Error

	r, err := mutate(code, func(r *Room) bool {
		derr = setSelection(r, p, enable, daddyAllowed)
		return derr == nil
	})
	if err != nil {
		return nil, nil, err
	}
	return r, derr, nil
}

// MarkCharged 在入场费成功扣除后原子地落下幂等标志。
// 席位在此期间被回滚或换人时安静地放弃。
func MarkCharged(code string, role Role, identity string) (*Room, error) {
	return mutate(code, func(r *Room) bool {
		s := r.Seat(role)
		if s.Identity != identity || !s.Effective || s.Charged {
			return false
		}
		s.Charged = true
		return true
	})
}

// RevertEffective 在扣费因余额不足失败后回滚生效标志（失败即关闭）。
// 选择标志保留，席位以免费模式继续对局。
func RevertEffective(code string, role Role, identity string) (*Room, error) {
	return mutate(code, func(r *Room) bool {
		s := r.Seat(role)
		if s.Identity != identity || !s.Effective {
			return false
		}
		s.Effective = false
		return true
	})
}

// BeginRewardSettlement 原子地执行一次性的胜利结算决策。
// rewardDistributed标志在事务内落下，之后的入账由调用方在账本中完成。
func BeginRewardSettlement(code string) (*Room, RewardDecision, error) {
	var decision RewardDecision

	r, err := mutate(code, func(r *Room) bool {
		var changed bool
		decision, changed = settleOutcome(r, time.Now())
		return changed
	})
	if err != nil {
		return nil, RewardDecision{}, err
	}
	return r, decision, nil
}

// ClaimAndClear 是兑现协议的原子检查-取额-清除步骤。
// 两个并发的兑现请求中只有一个能拿到Claim，另一个会在重跑后看到NoClaim。
func ClaimAndClear(code string, caller PlayerInfo) (claimed *Claim, rebind bool, derr *Error, err error) {
	_, err = mutate(code, func(r *Room) bool {
		var changed bool
		claimed, rebind, derr, changed = claimAndClear(r, caller, time.Now())
		return changed
	})
	if err != nil {
		return nil, false, nil, err
	}
	return claimed, rebind, derr, nil
}

// RestoreClaim 是兑现入账失败后的补偿操作：把已取走的Claim放回房间。
// 房间在此期间已出现新的Claim时放弃补偿（新Claim覆盖旧的）。
func RestoreClaim(code string, claimed *Claim) (*Room, error) {
	return mutate(code, func(r *Room) bool {
		if r.Claim != nil {
			return false
		}
		c := *claimed
		r.Claim = &c
		return true
	})
}

// RebindSeat 在兑现入账完成后，把仍未认证的获胜席位改绑到兑现者。
func RebindSeat(code string, role Role, p PlayerInfo) (*Room, error) {
	return mutate(code, func(r *Room) bool {
		s := r.Seat(role)
		if s.Authenticated && s.Identity != p.ID {
			// 席位在入账期间已被认证身份占据，放弃改绑
			return false
		}
		rebindSeat(r, role, p)
		return true
	})
}
