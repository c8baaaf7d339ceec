package room

// Code 是对外暴露的、机器可读的稳定错误码。
// 前端根据错误码提示用户，这里不承担人类可读的文案。
type Code string

const (
	CodeInvalidInput          Code = "InvalidInput"
	CodeNotAPlayer            Code = "NotAPlayer"
	CodeGameFinished          Code = "GameFinished"
	CodeNeedOpponent          Code = "NeedOpponent"
	CodeNotYourTurn           Code = "NotYourTurn"
	CodeOutOfRange            Code = "OutOfRange"
	CodeCellOccupied          Code = "CellOccupied"
	CodeInsufficientSelection Code = "InsufficientCoinsForSelection"
	CodeAuthRequired          Code = "AuthRequired"
	CodeNoClaim               Code = "NoClaim"
	CodeExpired               Code = "Expired"
	CodeNotClaimant           Code = "NotClaimant"
	CodeServerError           Code = "ServerError"
)

// Error 是带错误码的领域错误。
// 原子操作以它作为带标签的结果返回，而不是panic或裸error。
type Error struct {
	Code Code
}

func (e *Error) Error() string { return string(e.Code) }

// NewError 构造一个指定错误码的领域错误。
func NewError(code Code) *Error { return &Error{Code: code} }
