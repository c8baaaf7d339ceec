package room

import (
	"strconv"
	"time"
)

// Role 表示棋盘上的一个席位，X 或 O。
type Role string

const (
	RoleX Role = "X"
	RoleO Role = "O"
)

// Other 返回对面的席位。
func (r Role) Other() Role {
	if r == RoleX {
		return RoleO
	}
	return RoleX
}

// Cell 表示棋盘上一个格子的三态取值。
type Cell byte

const (
	CellEmpty Cell = '-'
	CellX     Cell = 'X'
	CellO     Cell = 'O'
)

// Board 是9格棋盘，下标0-8按行排列。
type Board [9]Cell

// Winner 表示对局的终局状态，空串表示对局仍在进行。
type Winner string

const (
	WinnerNone Winner = ""
	WinnerX    Winner = "X"
	WinnerO    Winner = "O"
	WinnerDraw Winner = "D"
)

// Seat 记录一个席位的绑定身份与经济状态。
type Seat struct {
	// Identity 是绑定到该席位的身份字符串（认证用户ID或游客ID），空串表示未绑定。
	Identity      string
	Name          string
	Avatar        string
	Authenticated bool

	// Selection 为true表示该席位本局选择了"大佬模式"。
	Selection bool
	// Effective 是派生出的生效标志：双方都已认证且本席位选择了大佬模式。
	Effective bool
	// Charged 表示本局的入场费是否已经扣除（幂等护栏）。
	Charged bool
}

// Claim 是欠给未认证获胜者的待领取奖励。
type Claim struct {
	Amount    int
	Role      Role
	ExpiresAt int64 // Unix秒
}

// Expired 判断该奖励在给定时刻是否已过期。
func (c *Claim) Expired(now time.Time) bool {
	return now.Unix() > c.ExpiresAt
}

// Room 是一个房间的完整权威状态。
// 它只存在于Redis中（24小时滚动TTL），所有修改都必须经过repository的原子操作。
type Room struct {
	Board  Board
	Next   Role
	Winner Winner
	Turn   int

	// Game 是每次reset递增的局次计数，用于生成入场费的幂等reason。
	Game int

	SeatX Seat
	SeatO Seat

	// RewardDistributed 保证每局的胜利奖励只被结算一次。
	RewardDistributed bool
	Claim             *Claim
}

// NewRoom 返回一个空房间的默认状态。
func NewRoom() *Room {
	r := &Room{Next: RoleX}
	for i := range r.Board {
		r.Board[i] = CellEmpty
	}
	return r
}

// Seat 返回指定席位的可变引用。
func (r *Room) Seat(role Role) *Seat {
	if role == RoleX {
		return &r.SeatX
	}
	return &r.SeatO
}

// RoleOf 返回一个身份所占据的席位。
func (r *Room) RoleOf(identity string) (Role, bool) {
	if identity == "" {
		return "", false
	}
	if r.SeatX.Identity == identity {
		return RoleX, true
	}
	if r.SeatO.Identity == identity {
		return RoleO, true
	}
	return "", false
}

// --- Redis 编解码 ---
// 房间以扁平的Hash字段存储，棋盘压缩为9字符字符串，布尔用"0"/"1"。

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseBool(s string) bool { return s == "1" }

// ToHash 将房间编码为Redis Hash的字段表。
func (r *Room) ToHash() map[string]interface{} {
	fields := map[string]interface{}{
		"board": string(r.Board[:]),
		"next":  string(r.Next),
		"win":   string(r.Winner),
		"turn":  r.Turn,
		"game":  r.Game,

		"px": r.SeatX.Identity, "po": r.SeatO.Identity,
		"nx": r.SeatX.Name, "no": r.SeatO.Name,
		"vx": r.SeatX.Avatar, "vo": r.SeatO.Avatar,
		"authx": boolField(r.SeatX.Authenticated), "autho": boolField(r.SeatO.Authenticated),
		"selx": boolField(r.SeatX.Selection), "selo": boolField(r.SeatO.Selection),
		"effx": boolField(r.SeatX.Effective), "effo": boolField(r.SeatO.Effective),
		"chgx": boolField(r.SeatX.Charged), "chgo": boolField(r.SeatO.Charged),

		"rwd": boolField(r.RewardDistributed),
	}

	if r.Claim != nil {
		fields["clm_amt"] = r.Claim.Amount
		fields["clm_role"] = string(r.Claim.Role)
		fields["clm_exp"] = r.Claim.ExpiresAt
	} else {
		fields["clm_amt"] = 0
		fields["clm_role"] = ""
		fields["clm_exp"] = 0
	}

	return fields
}

// FromHash 从Redis Hash的字段表解码出房间。
// 空表（键不存在）解码为默认的空房间，这就是房间的惰性创建语义。
func FromHash(fields map[string]string) *Room {
	r := NewRoom()
	if len(fields) == 0 {
		return r
	}

	if board, ok := fields["board"]; ok && len(board) == len(r.Board) {
		for i := range r.Board {
			r.Board[i] = Cell(board[i])
		}
	}
	if next, ok := fields["next"]; ok && next != "" {
		r.Next = Role(next)
	}
	r.Winner = Winner(fields["win"])
	r.Turn, _ = strconv.Atoi(fields["turn"])
	r.Game, _ = strconv.Atoi(fields["game"])

	r.SeatX = Seat{
		Identity:      fields["px"],
		Name:          fields["nx"],
		Avatar:        fields["vx"],
		Authenticated: parseBool(fields["authx"]),
		Selection:     parseBool(fields["selx"]),
		Effective:     parseBool(fields["effx"]),
		Charged:       parseBool(fields["chgx"]),
	}
	r.SeatO = Seat{
		Identity:      fields["po"],
		Name:          fields["no"],
		Avatar:        fields["vo"],
		Authenticated: parseBool(fields["autho"]),
		Selection:     parseBool(fields["selo"]),
		Effective:     parseBool(fields["effo"]),
		Charged:       parseBool(fields["chgo"]),
	}

	if amount, _ := strconv.Atoi(fields["clm_amt"]); amount > 0 {
		expires, _ := strconv.ParseInt(fields["clm_exp"], 10, 64)
		r.Claim = &Claim{
			Amount:    amount,
			Role:      Role(fields["clm_role"]),
			ExpiresAt: expires,
		}
	}

	return r
}
