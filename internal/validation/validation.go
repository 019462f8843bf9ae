// Package validation provides input validation for the walletscope API.
package validation

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// MinAddressLength is the shortest string accepted as an address by list
// parsing (a 0x prefix plus at least 8 hex chars). Anything shorter is
// discarded as noise rather than stored.
const MinAddressLength = 10

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAddress checks if a string is a valid hex-encoded chain address
func IsValidAddress(addr string) bool {
	return common.IsHexAddress(addr)
}

// NormalizeAddress lowercases an address and ensures the 0x prefix.
// It does not validate; use IsValidAddress for that.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}
	return addr
}

// AddressQueryMiddleware validates the ?address= query parameter on routes
// that require it, rejecting malformed addresses before the scoring
// pipeline is entered.
func AddressQueryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Query("address")
		if addr == "" || !IsValidAddress(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be a valid hex address (0x + 40 hex chars)",
			})
			return
		}
		c.Next()
	}
}
