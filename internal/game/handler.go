package game

import (
	"net/http"
	"regexp"

	"github.com/SlpAus/tictac-duel-backend/internal/broadcast"
	"github.com/SlpAus/tictac-duel-backend/internal/economy"
	"github.com/SlpAus/tictac-duel-backend/internal/platform/database"
	"github.com/SlpAus/tictac-duel-backend/internal/room"
	"github.com/SlpAus/tictac-duel-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// roomCodePattern 限定房间码的合法格式，非法的房间码在触达共享状态前被拒绝。
var roomCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// httpStatusFor 把稳定错误码映射到HTTP状态码。
func httpStatusFor(code room.Code) int {
	switch code {
	case room.CodeInvalidInput, room.CodeOutOfRange:
		return http.StatusBadRequest
	case room.CodeAuthRequired:
		return http.StatusUnauthorized
	case room.CodeInsufficientSelection:
		return http.StatusPaymentRequired
	case room.CodeNotAPlayer, room.CodeNotClaimant:
		return http.StatusForbidden
	case room.CodeGameFinished, room.CodeNeedOpponent, room.CodeNotYourTurn,
		room.CodeCellOccupied, room.CodeNoClaim, room.CodeExpired:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithCode(c *gin.Context, code room.Code) {
	c.JSON(httpStatusFor(code), gin.H{"error": code})
}

// RequireRedisHealthy 在Redis不可用时直接返回ServerError，
// 调用方可以安全地整体重试（所有变更都是原子的，没有半完成状态）。
func RequireRedisHealthy() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !database.IsRedisHealthy() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": room.CodeServerError})
			return
		}
		c.Next()
	}
}

// resolveRoomCode 校验并返回路径中的房间码，非法时返回false并已响应。
func resolveRoomCode(c *gin.Context) (string, bool) {
	code := c.Param("code")
	if !roomCodePattern.MatchString(code) {
		abortWithCode(c, room.CodeInvalidInput)
		return "", false
	}
	return code, true
}

// resolveCaller 取出请求方身份。游客cookie签发失败时身份为空串，
// 空身份绑定的席位对RoleOf不可见，会被后来者覆盖，必须在触达房间前拒绝。
func resolveCaller(c *gin.Context) (user.Identity, bool) {
	ident := user.GetIdentity(c)
	if ident.ID == "" {
		abortWithCode(c, room.CodeInvalidInput)
		return user.Identity{}, false
	}
	return ident, true
}

// playerInfo 把解析出的身份转换为房间层的玩家信息。
func playerInfo(ident user.Identity) room.PlayerInfo {
	return room.PlayerInfo{
		ID:            ident.ID,
		Authenticated: ident.Authenticated,
		Name:          ident.Name,
		Avatar:        ident.AvatarURL,
	}
}

func roleOrNil(role room.Role) *string {
	if role == "" {
		return nil
	}
	s := string(role)
	return &s
}

// respondState 构造标准的 {state, assignedRole} 响应体。
func respondState(c *gin.Context, r *room.Room, identity string, extra gin.H) {
	view := BuildStateView(r)
	role, _ := r.RoleOf(identity)
	body := gin.H{"state": view, "assignedRole": roleOrNil(role)}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// --- 请求体 ---

// JoinRequestBody 定义了入座请求的JSON结构
type JoinRequestBody struct {
	DisplayName   string `json:"displayName"`
	AvatarURL     string `json:"avatarUrl"`
	PreferredRole string `json:"preferredRole"` // "X"、"O" 或 "auto"
	// EconomySelection 非nil时更新本席位的大佬模式选择
	EconomySelection *bool `json:"economySelection"`
}

// MoveRequestBody 定义了落子请求的JSON结构
type MoveRequestBody struct {
	Cell *int `json:"cell" binding:"required"`
}

// ToggleModeRequestBody 定义了大佬模式开关请求的JSON结构
type ToggleModeRequestBody struct {
	Enable *bool `json:"enable" binding:"required"`
}

// --- 边界操作 ---

// Join 处理入座/重申请求。
// 大佬模式准入失败不阻止入座本身，只在响应中附带错误码（降级为免费模式）。
func Join(c *gin.Context) {
	code, ok := resolveRoomCode(c)
	if !ok {
		return
	}

	var body JoinRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithCode(c, room.CodeInvalidInput)
		return
	}

	ident, ok := resolveCaller(c)
	if !ok {
		return
	}
	p := playerInfo(ident)
	if body.DisplayName != "" {
		p.Name = body.DisplayName
	}
	if body.AvatarURL != "" {
		p.Avatar = body.AvatarURL
	}

	params := room.JoinParams{
		Player:        p,
		PreferredRole: body.PreferredRole,
		Selection:     body.EconomySelection,
	}
	if body.EconomySelection != nil && *body.EconomySelection {
		params.DaddyAllowed = economy.DaddyAllowed(ident.ID, ident.Authenticated)
	}

	r, assigned, soft, err := room.Join(code, params)
	if err != nil {
		abortWithCode(c, room.CodeServerError)
		return
	}

	r = economy.ReconcileCharges(code, r)
	broadcast.PublishRoomSnapshot(code, BuildStateView(r))

	extra := gin.H{"assignedRole": roleOrNil(assigned)}
	if soft != nil {
		extra["error"] = soft.Code
	}
	respondState(c, r, ident.ID, extra)
}

// Move 处理落子请求。
func Move(c *gin.Context) {
	code, ok := resolveRoomCode(c)
	if !ok {
		return
	}

	var body MoveRequestBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Cell == nil {
		abortWithCode(c, room.CodeInvalidInput)
		return
	}

	ident, ok := resolveCaller(c)
	if !ok {
		return
	}
	r, derr, err := room.ApplyMove(code, ident.ID, *body.Cell)
	if err != nil {
		abortWithCode(c, room.CodeServerError)
		return
	}
	if derr != nil {
		abortWithCode(c, derr.Code)
		return
	}

	r = economy.ReconcileCharges(code, r)
	if r.Winner == room.WinnerX || r.Winner == room.WinnerO {
		r = economy.SettleOutcome(code, r)
	}
	broadcast.PublishRoomSnapshot(code, BuildStateView(r))

	respondState(c, r, ident.ID, nil)
}

// Reset 重开一局，只有在座玩家可以触发。
func Reset(c *gin.Context) {
	code, ok := resolveRoomCode(c)
	if !ok {
		return
	}

	ident, ok := resolveCaller(c)
	if !ok {
		return
	}
	r, derr, err := room.Reset(code, ident.ID)
	if err != nil {
		abortWithCode(c, room.CodeServerError)
		return
	}
	if derr != nil {
		abortWithCode(c, derr.Code)
		return
	}

	// 新的一局重新扣入场费（生效选择被保留，Charged已清零）
	r = economy.ReconcileCharges(code, r)
	broadcast.PublishRoomSnapshot(code, BuildStateView(r))

	respondState(c, r, ident.ID, nil)
}

// AuthPing 在游客中途登录后刷新席位认证状态，让生效模式可以追溯激活。
func AuthPing(c *gin.Context) {
	code, ok := resolveRoomCode(c)
	if !ok {
		return
	}

	ident, ok := resolveCaller(c)
	if !ok {
		return
	}
	r, err := room.AuthPing(code, playerInfo(ident))
	if err != nil {
		abortWithCode(c, room.CodeServerError)
		return
	}

	r = economy.ReconcileCharges(code, r)
	broadcast.PublishRoomSnapshot(code, BuildStateView(r))

	respondState(c, r, ident.ID, nil)
}

// ToggleMode 处理对局中显式的大佬模式开关，开启时立即扣费。
func ToggleMode(c *gin.Context) {
	code, ok := resolveRoomCode(c)
	if !ok {
		return
	}

	var body ToggleModeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Enable == nil {
		abortWithCode(c, room.CodeInvalidInput)
		return
	}

	ident, ok := resolveCaller(c)
	if !ok {
		return
	}
	daddyAllowed := false
	if *body.Enable {
		daddyAllowed = economy.DaddyAllowed(ident.ID, ident.Authenticated)
	}

	r, derr, err := room.SetSelection(code, playerInfo(ident), *body.Enable, daddyAllowed)
	if err != nil {
		abortWithCode(c, room.CodeServerError)
		return
	}
	if derr != nil {
		abortWithCode(c, derr.Code)
		return
	}

	r = economy.ReconcileCharges(code, r)
	broadcast.PublishRoomSnapshot(code, BuildStateView(r))

	respondState(c, r, ident.ID, nil)
}

// Claim 兑现待领取的胜利奖励。
func Claim(c *gin.Context) {
	code, ok := resolveRoomCode(c)
	if !ok {
		return
	}

	ident, ok := resolveCaller(c)
	if !ok {
		return
	}
	settled, amount, derr, err := economy.RedeemClaim(code, playerInfo(ident))
	if err != nil {
		abortWithCode(c, room.CodeServerError)
		return
	}
	if derr != nil {
		abortWithCode(c, derr.Code)
		return
	}

	// 兑现可能改绑了席位，广播最新快照
	if r, sErr := room.Snapshot(code); sErr == nil {
		broadcast.PublishRoomSnapshot(code, BuildStateView(r))
	}

	c.JSON(http.StatusOK, gin.H{"settled": settled, "amount": amount})
}

// State 返回只读快照，不触发任何修改。
func State(c *gin.Context) {
	code, ok := resolveRoomCode(c)
	if !ok {
		return
	}

	r, err := room.Snapshot(code)
	if err != nil {
		abortWithCode(c, room.CodeServerError)
		return
	}

	ident := user.GetIdentity(c)
	respondState(c, r, ident.ID, nil)
}
