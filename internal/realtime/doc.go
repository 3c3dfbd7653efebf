// Package realtime 即時對話訊息與上線狀態。
//
// Hub 管理所有 WebSocket 連線、以對話 ID 分組的房間以及上線名單。
// 每個特權操作都先確認連線已驗證身分，再向 MembershipAuthority 重新查詢成員資格；
// 對話廣播一律經由 Bridge，REST 寫入在交易提交之後也呼叫同一個 Bridge；
// 上線狀態只在本機程序內送給所有連線。
package realtime
