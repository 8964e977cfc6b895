// Package aggregate 收集同一条记录（以包名为键）陆续到达的各个部分
// （info/readme/docs），在所有必需部分齐备的那一刻把合并后的记录交给 Sink。
//
// 完成后的记录会被清空并封存：之后再提交同一键的部分会返回 ErrRecordSealed，
// 因此 Sink 对每条记录只会被调用一次。Sink 失败时记录会被恢复为未封存状态，
// 下一次提交部分会重新触发持久化。
package aggregate
