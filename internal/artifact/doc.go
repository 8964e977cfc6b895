// Package artifact 维护缓存可识别的产物类型（manifest/readme/docs/module/record），
// 并提供统一的注册入口。
//
// 每种产物需要：
//   1. 声明唯一 Key 与磁盘扩展名，缓存层据此拼出 <Root>/<Package key>/<kind><ext>；
//   2. 标记 Structured，表示正文必须是合法 JSON，读取失败会被视为损坏缓存；
//   3. 在 init() 中通过 MustRegister 注册，重复键直接 panic。
//
// 诊断端 /-/status 通过 List 输出所有已注册类型。
package artifact
