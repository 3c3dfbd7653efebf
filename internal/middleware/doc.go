// Package middleware 提供了 HTTP 請求處理的中間件。
//
// AuthMiddleware 負責 Bearer JWT 驗證，RequestLogger 以 slog 記錄每個請求。
package middleware
