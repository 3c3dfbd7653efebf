// Package api 處理 HTTP 請求路由和處理。
//
// handlers 把 REST 請求轉成 service 呼叫；出價與預約在寫入成功後由 service 經 realtime.Bridge 廣播。
// /api/ws 升級為 WebSocket 後整條連線交給 realtime.Hub。
package api
