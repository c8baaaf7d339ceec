package economy

import (
	"errors"
	"fmt"

	"github.com/SlpAus/tictac-duel-backend/internal/broadcast"
	"github.com/SlpAus/tictac-duel-backend/internal/platform/config"
	"github.com/SlpAus/tictac-duel-backend/internal/room"
	"github.com/SlpAus/tictac-duel-backend/internal/wallet"
)

// 经济协调器：把席位状态与对局结果翻译成账本动作。
// 房间状态（Redis）与账本（SQLite）不在同一个事务里，这是有意的取舍，
// 一致性由"先落幂等标志、reason幂等入账、可安全重入"共同保证。

// entryFee 返回大佬模式的每局入场费。
func entryFee() int {
	if config.Cfg != nil && config.Cfg.Economy.EntryFee > 0 {
		return config.Cfg.Economy.EntryFee
	}
	return 1
}

// DaddyAllowed 预检一个身份是否满足选择大佬模式的条件：已认证且余额足够入场费。
func DaddyAllowed(uid string, authenticated bool) bool {
	if !authenticated {
		return false
	}
	balance, err := wallet.Balance(uid)
	if err != nil {
		fmt.Printf("预检余额失败 %s: %v\n", uid, err)
		return false
	}
	return balance >= entryFee()
}

// ReconcileCharges 为所有"生效但未扣费"的席位补扣入场费。
// 每个修改入口（join/move/authping/mode）之后都会调用，可安全重入：
// 扣费reason按(房间,席位,局次)幂等，Charged标志在房间内原子落下；
// 余额不足时回滚生效标志（失败即关闭），对局以免费模式继续。
func ReconcileCharges(code string, r *room.Room) *room.Room {
	latest := r
	for _, role := range room.PendingCharges(r) {
		s := r.Seat(role)
		reason := fmt.Sprintf("fee:%s:%s:%d", code, role, r.Game)

		err := wallet.Debit(s.Identity, entryFee(), reason)
		switch {
		case err == nil:
			if nr, mErr := room.MarkCharged(code, role, s.Identity); mErr == nil {
				latest = nr
			} else {
				fmt.Printf("警告: 房间 %s 席位 %s 扣费标志落盘失败: %v\n", code, role, mErr)
			}
			broadcast.PublishBalance(s.Identity, mustBalance(s.Identity))
		case errors.Is(err, wallet.ErrInsufficientBalance):
			if nr, mErr := room.RevertEffective(code, role, s.Identity); mErr == nil {
				latest = nr
			} else {
				fmt.Printf("警告: 房间 %s 席位 %s 生效回滚失败: %v\n", code, role, mErr)
			}
		default:
			// 账本暂时不可用：标志保持未扣费，下一次触达时重试
			fmt.Printf("警告: 房间 %s 席位 %s 入场费扣除失败: %v\n", code, role, err)
		}
	}
	return latest
}

// SettleOutcome 在对局分出胜负后执行一次性的奖励结算。
// rewardDistributed标志先在房间内原子落下，随后的入账按reason幂等，
// 重复调用不会产生第二次奖励。
func SettleOutcome(code string, r *room.Room) *room.Room {
	if (r.Winner != room.WinnerX && r.Winner != room.WinnerO) || r.RewardDistributed {
		return r
	}

	nr, decision, err := room.BeginRewardSettlement(code)
	if err != nil {
		fmt.Printf("警告: 房间 %s 奖励结算失败: %v\n", code, err)
		return r
	}

	if decision.CreditIdentity != "" && decision.Amount > 0 {
		reason := fmt.Sprintf("win:%s:%s:%d", code, decision.WinnerRole, decision.Turn)
		if err := wallet.Credit(decision.CreditIdentity, decision.Amount, reason); err != nil {
			fmt.Printf("严重错误: 房间 %s 胜利奖励入账失败: %v\n", code, err)
		} else {
			broadcast.PublishBalance(decision.CreditIdentity, mustBalance(decision.CreditIdentity))
		}
	}

	return nr
}

// RedeemClaim 执行兑现协议：原子取额清除，然后入账，最后在需要时改绑席位。
// 顺序是协议的关键：绝不能先入账再清除，否则存在双重入账的竞态窗口。
func RedeemClaim(code string, caller room.PlayerInfo) (settled bool, amount int, derr *room.Error, err error) {
	claimed, rebind, derr, err := room.ClaimAndClear(code, caller)
	if err != nil {
		return false, 0, nil, err
	}
	if derr != nil {
		return false, 0, derr, nil
	}

	// 原子清除已完成，本次调用独占这份奖励
	reason := fmt.Sprintf("claim:%s:%s:%d", code, claimed.Role, claimed.ExpiresAt)
	if err := wallet.Credit(caller.ID, claimed.Amount, reason); err != nil {
		// 入账失败：执行补偿，把Claim放回房间等待重试
		fmt.Printf("严重错误: 房间 %s 兑现入账失败，正在回滚Claim: %v\n", code, err)
		if _, rErr := room.RestoreClaim(code, claimed); rErr != nil {
			fmt.Printf("严重错误: 房间 %s Claim补偿失败: %v\n", code, rErr)
		}
		return false, 0, room.NewError(room.CodeServerError), nil
	}

	if rebind {
		if _, rErr := room.RebindSeat(code, claimed.Role, caller); rErr != nil {
			fmt.Printf("警告: 房间 %s 席位 %s 改绑失败: %v\n", code, claimed.Role, rErr)
		}
	}

	broadcast.PublishBalance(caller.ID, mustBalance(caller.ID))
	return true, claimed.Amount, nil, nil
}

// mustBalance 读取余额用于通知，失败时返回0（通知是尽力而为的）。
func mustBalance(uid string) int {
	balance, err := wallet.Balance(uid)
	if err != nil {
		return 0
	}
	return balance
}
