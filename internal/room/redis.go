package room

import "time"

// 定义与房间相关的Redis键名

const (
	// StateKeyPrefix 是房间状态Hash的键前缀。
	// Key: room:state:<房间码>
	// Value: Room的扁平字段表（见model.go的编解码）
	StateKeyPrefix = "room:state:"

	// StateTTL 是房间记录的滚动生存期，每次写操作都会刷新。
	StateTTL = 24 * time.Hour
)

// StateKey 返回一个房间的状态键。
func StateKey(code string) string {
	return StateKeyPrefix + code
}
