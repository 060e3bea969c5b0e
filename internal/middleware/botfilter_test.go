package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestBotFilter(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		wantBot   bool
	}{
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true},
		{"facebook preview", "facebookexternalhit/1.1", true},
		{"ahrefs crawler", "Mozilla/5.0 (compatible; AhrefsBot/7.0; +http://ahrefs.com/robot/)", true},
		{"regular chrome", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36", false},
		{"empty user agent", "", false},
	}

	gin.SetMode(gin.TestMode)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBot bool

			router := gin.New()
			router.Use(BotFilter())
			router.GET("/test", func(c *gin.Context) {
				gotBot = c.GetBool(IsBotKey)
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.userAgent != "" {
				req.Header.Set("User-Agent", tt.userAgent)
			}
			router.ServeHTTP(w, req)

			if gotBot != tt.wantBot {
				t.Errorf("is_bot: got %v, want %v", gotBot, tt.wantBot)
			}
			if w.Code != http.StatusOK {
				t.Errorf("bot filter must never block the request, got %d", w.Code)
			}
		})
	}
}
