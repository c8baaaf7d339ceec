package room

import (
	"time"
)

// 本文件是纯粹的状态机逻辑：所有函数只操作内存中的Room，
// 不接触Redis。repository负责把每个转换包进一个原子事务。

// claimTTL 是待领取奖励的有效期。
const claimTTL = 24 * time.Hour

// PlayerInfo 是边界层解析出的请求方身份。
type PlayerInfo struct {
	ID            string
	Authenticated bool
	Name          string
	Avatar        string
}

// JoinParams 是join操作的全部输入。
type JoinParams struct {
	Player        PlayerInfo
	PreferredRole string // "X"、"O" 或 "auto"
	// Selection 非nil时表示本次请求要更新经济模式选择
	Selection *bool
	// DaddyAllowed 由调用方预先核验：已认证且余额足够入场费
	DaddyAllowed bool
}

// winLines 是8条标准胜利线：3行、3列、2条对角线。
// 判定时按固定顺序扫描，第一条连成的线获胜。
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// evaluateBoard 对当前棋盘做终局判定。
func evaluateBoard(b Board) Winner {
	for _, line := range winLines {
		c := b[line[0]]
		if c != CellEmpty && c == b[line[1]] && c == b[line[2]] {
			if c == CellX {
				return WinnerX
			}
			return WinnerO
		}
	}
	for _, c := range b {
		if c == CellEmpty {
			return WinnerNone
		}
	}
	return WinnerDraw
}

// recomputeEffective 是唯一的生效模式推导函数，每个修改入口都要调用它。
// 生效条件：双方席位都绑定了已认证身份，且本席位自己选择了大佬模式。
func recomputeEffective(r *Room) {
	bothAuth := r.SeatX.Identity != "" && r.SeatX.Authenticated &&
		r.SeatO.Identity != "" && r.SeatO.Authenticated
	r.SeatX.Effective = bothAuth && r.SeatX.Selection
	r.SeatO.Effective = bothAuth && r.SeatO.Selection
}

// PendingCharges 返回生效但尚未扣费的席位，供经济协调器补扣入场费。
func PendingCharges(r *Room) []Role {
	var pending []Role
	for _, role := range []Role{RoleX, RoleO} {
		s := r.Seat(role)
		if s.Effective && !s.Charged && s.Identity != "" {
			pending = append(pending, role)
		}
	}
	return pending
}

// applyMove 校验并落下一步棋。
// 失败时返回带错误码的领域错误，此时房间不应被写回。
func applyMove(r *Room, identity string, cell int) *Error {
	// 空房间的第一步棋：落子者自动绑定为X
	if r.SeatX.Identity == "" && r.SeatO.Identity == "" {
		r.SeatX.Identity = identity
	}

	role, bound := r.RoleOf(identity)
	if !bound {
		// X已被他人占据时，落子不会自动绑定O（O席位必须显式join）
		return NewError(CodeNotAPlayer)
	}

	if r.Winner != WinnerNone {
		return NewError(CodeGameFinished)
	}
	if r.Seat(role.Other()).Identity == "" {
		// 防止单人自娱：X在O落座前不能开局
		return NewError(CodeNeedOpponent)
	}
	if r.Next != role {
		return NewError(CodeNotYourTurn)
	}
	if cell < 0 || cell >= len(r.Board) {
		return NewError(CodeOutOfRange)
	}
	if r.Board[cell] != CellEmpty {
		return NewError(CodeCellOccupied)
	}

	mark := CellX
	if role == RoleO {
		mark = CellO
	}
	r.Board[cell] = mark
	r.Turn++

	if w := evaluateBoard(r.Board); w != WinnerNone {
		r.Winner = w
	} else {
		r.Next = role.Other()
	}

	recomputeEffective(r)
	return nil
}

// applySelection 更新一个席位的经济模式选择，并执行大佬模式的准入校验。
// 校验失败时选择被强制回落为免费模式，返回的软错误不阻止上层操作本身。
func applySelection(s *Seat, want bool, p PlayerInfo, daddyAllowed bool) *Error {
	if want && !(p.Authenticated && daddyAllowed) {
		s.Selection = false
		return NewError(CodeInsufficientSelection)
	}
	s.Selection = want
	return nil
}

// join 处理入座/重申请求，返回分配到的席位（空串表示旁观者）。
// 第二个返回值是不影响入座结果的软错误（目前只有大佬模式准入失败）。
func join(r *Room, p JoinParams) (Role, *Error) {
	// 已持有席位：重申并刷新资料，不改变席位
	if role, bound := r.RoleOf(p.Player.ID); bound {
		s := r.Seat(role)
		s.Name = p.Player.Name
		s.Avatar = p.Player.Avatar
		s.Authenticated = p.Player.Authenticated
		var soft *Error
		if p.Selection != nil {
			soft = applySelection(s, *p.Selection, p.Player, p.DaddyAllowed)
		}
		recomputeEffective(r)
		return role, soft
	}

	// 尝试分配席位：优先请求的席位，其次任一空位；都满则成为旁观者
	var target Role
	switch {
	case p.PreferredRole == string(RoleX) && r.SeatX.Identity == "":
		target = RoleX
	case p.PreferredRole == string(RoleO) && r.SeatO.Identity == "":
		target = RoleO
	case r.SeatX.Identity == "":
		target = RoleX
	case r.SeatO.Identity == "":
		target = RoleO
	default:
		return "", nil
	}

	s := r.Seat(target)
	s.Identity = p.Player.ID
	s.Name = p.Player.Name
	s.Avatar = p.Player.Avatar
	s.Authenticated = p.Player.Authenticated

	var soft *Error
	if p.Selection != nil {
		soft = applySelection(s, *p.Selection, p.Player, p.DaddyAllowed)
	}

	recomputeEffective(r)
	return target, soft
}

// authPing 在游客中途完成登录后刷新其席位的认证状态。
// 调用者不是玩家时只做一次无害的重算。
func authPing(r *Room, p PlayerInfo) {
	if role, bound := r.RoleOf(p.ID); bound {
		s := r.Seat(role)
		s.Authenticated = p.Authenticated
		if p.Name != "" {
			s.Name = p.Name
		}
		if p.Avatar != "" {
			s.Avatar = p.Avatar
		}
	}
	recomputeEffective(r)
}

// setSelection 处理对局中显式的大佬模式开关。
func setSelection(r *Room, p PlayerInfo, enable bool, daddyAllowed bool) *Error {
	role, bound := r.RoleOf(p.ID)
	if !bound {
		return NewError(CodeNotAPlayer)
	}

	s := r.Seat(role)
	s.Authenticated = p.Authenticated
	if enable {
		if !p.Authenticated {
			return NewError(CodeAuthRequired)
		}
		if !daddyAllowed {
			return NewError(CodeInsufficientSelection)
		}
	}
	s.Selection = enable
	recomputeEffective(r)
	return nil
}

// reset 重开一局：清空棋盘与本局标志，保留席位绑定、资料与经济选择。
// 未兑现的Claim属于上一局的既得奖励，同样保留。
func reset(r *Room, identity string) *Error {
	if _, bound := r.RoleOf(identity); !bound {
		return NewError(CodeNotAPlayer)
	}

	for i := range r.Board {
		r.Board[i] = CellEmpty
	}
	r.Next = RoleX
	r.Winner = WinnerNone
	r.Turn = 0
	r.Game++

	r.SeatX.Charged = false
	r.SeatO.Charged = false
	r.RewardDistributed = false

	recomputeEffective(r)
	return nil
}

// RewardDecision 描述一次胜利结算的结果。
type RewardDecision struct {
	// CreditIdentity 非空时表示应立即向该身份入账Amount
	CreditIdentity string
	Amount         int
	WinnerRole     Role
	Turn           int
	// ClaimCreated 表示奖励被挂为待领取（获胜者未认证）
	ClaimCreated bool
}

// rewardAmount 是固定的奖励表：按双方在获胜时刻的生效模式取值。
func rewardAmount(winner, loser *Seat) int {
	switch {
	case winner.Effective && loser.Effective:
		return 3
	case winner.Effective:
		return 2
	case loser.Effective:
		return 1
	default:
		return 0
	}
}

// settleOutcome 在对局分出胜负后执行一次性的奖励结算决策。
// 返回changed=false表示本次调用没有任何可提交的状态变化（未分胜负或已结算过）。
func settleOutcome(r *Room, now time.Time) (RewardDecision, bool) {
	if r.Winner != WinnerX && r.Winner != WinnerO {
		return RewardDecision{}, false
	}
	if r.RewardDistributed {
		return RewardDecision{}, false
	}

	winnerRole := Role(r.Winner)
	w := r.Seat(winnerRole)
	l := r.Seat(winnerRole.Other())

	decision := RewardDecision{WinnerRole: winnerRole, Turn: r.Turn}
	award := rewardAmount(w, l)

	bothAuth := r.SeatX.Authenticated && r.SeatO.Authenticated &&
		r.SeatX.Identity != "" && r.SeatO.Identity != ""

	switch {
	case award > 0 && w.Authenticated:
		decision.CreditIdentity = w.Identity
		decision.Amount = award
	case award > 0:
		// 获胜者未认证：挂起待领取，等其完成登录后通过claim协议兑现
		r.Claim = &Claim{Amount: award, Role: winnerRole, ExpiresAt: now.Add(claimTTL).Unix()}
		decision.Amount = award
		decision.ClaimCreated = true
	case !w.Authenticated && (r.SeatX.Selection != r.SeatO.Selection) && !bothAuth:
		// 安慰性奖励：恰有一方选择了大佬模式但配对始终未达成双认证，
		// 奖励未认证获胜者1枚，以认可其参与付费模式的意愿
		r.Claim = &Claim{Amount: 1, Role: winnerRole, ExpiresAt: now.Add(claimTTL).Unix()}
		decision.Amount = 1
		decision.ClaimCreated = true
	}

	r.RewardDistributed = true
	return decision, true
}

// claimAndClear 是兑现协议的核心：在一次调用内完成校验、取额与清除。
// changed=true表示房间状态需要提交（奖励被取走，或过期的Claim被清理）。
// 返回的claimed是被取走的Claim的副本，只有成功兑现时非nil。
func claimAndClear(r *Room, caller PlayerInfo, now time.Time) (claimed *Claim, rebind bool, derr *Error, changed bool) {
	if r.Claim == nil {
		return nil, false, NewError(CodeNoClaim), false
	}

	if r.Claim.Expired(now) {
		// 过期的Claim只在有人尝试兑现时才被清理
		r.Claim = nil
		return nil, false, NewError(CodeExpired), true
	}

	if !caller.Authenticated {
		return nil, false, NewError(CodeAuthRequired), false
	}

	s := r.Seat(r.Claim.Role)
	switch {
	case s.Identity == caller.ID:
		// 原身份完成了登录：就地升级认证标志
		s.Authenticated = true
		recomputeEffective(r)
	case !s.Authenticated:
		// 获胜席位仍是游客：允许新认证身份兑现并随后改绑该席位
		rebind = true
	default:
		return nil, false, NewError(CodeNotClaimant), false
	}

	taken := *r.Claim
	r.Claim = nil
	return &taken, rebind, nil, true
}

// rebindSeat 把一个席位改绑到新的认证身份。
// 这是席位身份不可变规则的唯一例外，只能由claim兑现路径触发。
func rebindSeat(r *Room, role Role, p PlayerInfo) {
	s := r.Seat(role)
	s.Identity = p.ID
	s.Authenticated = true
	s.Name = p.Name
	s.Avatar = p.Avatar
	recomputeEffective(r)
}
