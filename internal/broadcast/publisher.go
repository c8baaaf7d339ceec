package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/SlpAus/tictac-duel-backend/internal/platform/database"
	"github.com/SlpAus/tictac-duel-backend/pkg/lifecycle"
)

// 定义广播相关的Redis频道名
const (
	// RoomChannelPrefix 是房间快照的发布频道前缀。
	// Channel: room:events:<房间码>
	// Payload: 完整的房间快照JSON（订阅方按整体替换处理，不是增量）
	RoomChannelPrefix = "room:events:"

	// BalanceChannelPrefix 是用户个人余额变动通知的频道前缀。
	// Channel: user:balance:<用户UUID>
	BalanceChannelPrefix = "user:balance:"
)

// message 是一条待发布的pub/sub消息
type message struct {
	channel string
	payload string
}

// publisher 是一个单一消费者，负责把状态变更异步推送到Redis pub/sub。
// 发布是at-least-once、fire-and-forget的：发布失败只记日志，绝不回滚业务变更。
type publisher struct {
	queue         chan message
	isShutdown    bool
	shutdownMutex sync.Mutex
}

// globalPublisher 是一个私有的、全局的publisher实例
var globalPublisher = &publisher{
	queue: make(chan message, 4096),
}

// submit 非阻塞地提交一条消息，队列满时丢弃并告警。
// 快照是整体替换语义，丢失一条不影响订阅方的最终一致。
func submit(msg message) {
	globalPublisher.shutdownMutex.Lock()
	defer globalPublisher.shutdownMutex.Unlock()
	if globalPublisher.isShutdown {
		return
	}
	select {
	case globalPublisher.queue <- msg:
	default:
		fmt.Printf("警告: 广播队列已满，丢弃发往 %s 的消息\n", msg.channel)
	}
}

// PublishRoomSnapshot 把一次状态变更后的完整房间快照推送到房间频道。
func PublishRoomSnapshot(code string, snapshot interface{}) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		fmt.Printf("警告: 房间 %s 快照序列化失败: %v\n", code, err)
		return
	}
	submit(message{channel: RoomChannelPrefix + code, payload: string(payload)})
}

// PublishBalance 把余额变动通知推送到用户的个人频道。
func PublishBalance(uid string, balance int) {
	payload, _ := json.Marshal(map[string]int{"balance": balance})
	submit(message{channel: BalanceChannelPrefix + uid, payload: string(payload)})
}

// StartPublisher 启动广播器的主循环，响应两阶段停机。
func StartPublisher(gracefulHandle, forcefulHandle *lifecycle.Handle) {
	defer gracefulHandle.Close()
	defer forcefulHandle.Close()
	fmt.Println("广播器 (Broadcast Publisher) 已启动。")

	for {
		select {
		case <-gracefulHandle.Done():
			fmt.Println("Broadcast Publisher: 收到优雅停机信号，正在发布剩余消息...")
			drainQueue(forcefulHandle)
			fmt.Println("Broadcast Publisher: 优雅停机完成，主循环退出。")
			return
		case msg := <-globalPublisher.queue:
			publishOne(msg)
		}
	}
}

// publishOne 执行一次实际的发布，失败只记日志。
func publishOne(msg message) {
	if err := database.RDB.Publish(database.Ctx, msg.channel, msg.payload).Err(); err != nil {
		fmt.Printf("警告: 发布到 %s 失败: %v\n", msg.channel, err)
	}
}

// drainQueue 在优雅停机阶段尽力发布完队列中的剩余消息。
func drainQueue(forcefulHandle *lifecycle.Handle) {
	// 先关闭入口，不再接收新消息
	globalPublisher.shutdownMutex.Lock()
	globalPublisher.isShutdown = true
	close(globalPublisher.queue)
	globalPublisher.shutdownMutex.Unlock()

	for msg := range globalPublisher.queue {
		select {
		case <-forcefulHandle.Done():
			fmt.Println("Broadcast Publisher: 收到强制停机信号，排空队列被中断。")
			return
		default:
		}
		publishOne(msg)
	}
}
