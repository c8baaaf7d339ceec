package game

import (
	"github.com/SlpAus/tictac-duel-backend/internal/room"
)

// 本文件定义边界层返回给前端的快照模型。
// 订阅方把快照当作整体替换处理，所以广播与HTTP响应共用同一个结构。

// RoleStrings 是按席位展开的一对可空字符串
type RoleStrings struct {
	X *string `json:"X"`
	O *string `json:"O"`
}

// RoleBools 是按席位展开的一对布尔值
type RoleBools struct {
	X bool `json:"X"`
	O bool `json:"O"`
}

// ClaimView 是待领取奖励的对外视图
type ClaimView struct {
	Amount     int    `json:"amount"`
	WinnerRole string `json:"winnerRole"`
	ExpiresAt  int64  `json:"expiresAt"`
}

// StateView 是房间的权威快照
type StateView struct {
	Board          [9]*string  `json:"board"`
	Next           string      `json:"next"`
	Winner         *string     `json:"winner"`
	Turn           int         `json:"turn"`
	Players        RoleStrings `json:"players"`
	Names          RoleStrings `json:"names"`
	Avatars        RoleStrings `json:"avatars"`
	EconomyMode    RoleBools   `json:"economyMode"`
	EconomyPending RoleBools   `json:"economyPending"`
	Claim          *ClaimView  `json:"claim"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// BuildStateView 把内部的房间状态映射为对外快照。
func BuildStateView(r *room.Room) StateView {
	view := StateView{
		Next: string(r.Next),
		Turn: r.Turn,
		Players: RoleStrings{
			X: optional(r.SeatX.Identity),
			O: optional(r.SeatO.Identity),
		},
		Names: RoleStrings{
			X: optional(r.SeatX.Name),
			O: optional(r.SeatO.Name),
		},
		Avatars: RoleStrings{
			X: optional(r.SeatX.Avatar),
			O: optional(r.SeatO.Avatar),
		},
		EconomyMode: RoleBools{
			X: r.SeatX.Effective,
			O: r.SeatO.Effective,
		},
		// Pending表示已选择但尚未生效（对方未认证或费用未到位）
		EconomyPending: RoleBools{
			X: r.SeatX.Selection && !r.SeatX.Effective,
			O: r.SeatO.Selection && !r.SeatO.Effective,
		},
	}

	for i, c := range r.Board {
		if c != room.CellEmpty {
			s := string(c)
			view.Board[i] = &s
		}
	}

	switch r.Winner {
	case room.WinnerX, room.WinnerO:
		s := string(r.Winner)
		view.Winner = &s
	case room.WinnerDraw:
		s := "Draw"
		view.Winner = &s
	}

	if r.Claim != nil {
		view.Claim = &ClaimView{
			Amount:     r.Claim.Amount,
			WinnerRole: string(r.Claim.Role),
			ExpiresAt:  r.Claim.ExpiresAt,
		}
	}

	return view
}
