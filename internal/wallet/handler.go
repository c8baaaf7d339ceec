package wallet

import (
	"net/http"
	"strconv"
	"time"

	"github.com/SlpAus/tictac-duel-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// BalanceResponse 是余额查询的响应体
type BalanceResponse struct {
	Balance int `json:"balance"`
}

// TransactionResponse 是单条流水的响应体
type TransactionResponse struct {
	Amount    int       `json:"amount"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// GetBalance 返回当前认证用户的余额
func GetBalance(c *gin.Context) {
	ident := user.GetIdentity(c)
	if !ident.Authenticated {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "AuthRequired"})
		return
	}

	balance, err := Balance(ident.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ServerError"})
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{Balance: balance})
}

// GetTransactions 返回当前认证用户最近的流水
func GetTransactions(c *gin.Context) {
	ident := user.GetIdentity(c)
	if !ident.Authenticated {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "AuthRequired"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := Transactions(ident.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ServerError"})
		return
	}

	resp := make([]TransactionResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, TransactionResponse{
			Amount:    r.Amount,
			Kind:      r.Kind,
			Reason:    r.Reason,
			CreatedAt: r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}
