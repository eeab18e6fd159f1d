package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/parish-tools/rosterbot/pkg/errors"
	"github.com/parish-tools/rosterbot/pkg/response"
)

const (
	headerKey  = "X-Telegram-Init-Data"
	contextKey = "telegram_user_id"
)

// Middleware verifies Telegram Mini App init data passed in the
// X-Telegram-Init-Data header and stores the caller's user ID in the
// context. With an empty bot token verification is skipped, which keeps
// local development possible without real init data.
func Middleware(botToken string) gin.HandlerFunc {
	secret := secretKey(botToken)

	return func(c *gin.Context) {
		if botToken == "" {
			c.Next()
			return
		}

		raw := c.GetHeader(headerKey)
		if raw == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "missing init data"))
			c.Abort()
			return
		}

		userID, ok := verify(raw, secret)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid init data"))
			c.Abort()
			return
		}

		c.Set(contextKey, userID)
		c.Next()
	}
}

// UserID returns the verified Telegram user ID, or 0 when verification was
// skipped.
func UserID(c *gin.Context) int64 {
	if v, exists := c.Get(contextKey); exists {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

// secretKey derives the webapp signing key from the bot token.
func secretKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// verify checks the init data signature and extracts the user ID.
func verify(raw string, secret []byte) (int64, bool) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return 0, false
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return 0, false
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+values.Get(key))
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	wantHash := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(gotHash), []byte(wantHash)) {
		return 0, false
	}

	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return 0, false
	}
	return user.ID, true
}
