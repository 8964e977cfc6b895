// Package proxy 把同步的 HTTP 请求翻译成对引擎的异步调用：
//
//   - GET /search 以原始 query string 为 key 经 bridge 派发，超时返回 408；
//   - GET /packages/:author/:name/:version/:kind 先查内容寻址缓存，未命中再请求
//     引擎并回写缓存，同一产物的并发未命中只派发一次；
//   - PUT 同一路径写入缓存并通过 AddArtifact 交给引擎；
//   - /-/records 与 /-/stage 分别服务聚合器与引擎输入的预热。
package proxy
