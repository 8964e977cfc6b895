package artifact

// Kind 记录一种产物的静态信息，供缓存路径计算与 HTTP 输出使用。
type Kind struct {
	Key         string
	Extension   string
	ContentType string
	Description string
	// Structured 为 true 时正文必须可被解析为 JSON。
	Structured bool
}

// FileName 返回该产物在包目录下的文件名。
func (k Kind) FileName() string {
	return k.Key + k.Extension
}

const (
	KindManifest = "manifest"
	KindReadme   = "readme"
	KindDocs     = "docs"
	KindModule   = "module"
	KindRecord   = "record"
)

func init() {
	MustRegister(Kind{
		Key:         KindManifest,
		Extension:   ".json",
		ContentType: "application/json",
		Description: "package manifest (elm.json)",
		Structured:  true,
	})
	MustRegister(Kind{
		Key:         KindReadme,
		Extension:   ".md",
		ContentType: "text/markdown; charset=utf-8",
		Description: "raw readme text",
	})
	MustRegister(Kind{
		Key:         KindDocs,
		Extension:   ".json",
		ContentType: "application/json",
		Description: "documentation blob emitted by the engine",
		Structured:  true,
	})
	MustRegister(Kind{
		Key:         KindModule,
		Extension:   ".dat",
		ContentType: "application/octet-stream",
		Description: "compiled module representation",
	})
	MustRegister(Kind{
		Key:         KindRecord,
		Extension:   ".json",
		ContentType: "application/json",
		Description: "merged package record written by the aggregator",
		Structured:  true,
	})
}
