package cache

import (
	"errors"
	"fmt"
	"strings"
)

const (
	keyPrefix    = "Package"
	keyDelimiter = "__"
	escapeChar   = '~'
)

// Coordinate 唯一标识一个包（author/name/version），构造后不可变。
type Coordinate struct {
	Author  string `json:"author"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Validate 拒绝空字段，空字段会让 KeyFor 失去单射性。
func (c Coordinate) Validate() error {
	switch {
	case c.Author == "":
		return errors.New("coordinate author required")
	case c.Name == "":
		return errors.New("coordinate name required")
	case c.Version == "":
		return errors.New("coordinate version required")
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s/%s@%s", c.Author, c.Name, c.Version)
}

// KeyFor 计算坐标对应的目录名，例如 (elm, core, 1.0.0) → Package__elm__core__1_0_0。
//
// author/name 中的 '-'、version 中的 '.' 归一化为 '_'；其余非字母数字字符
// （包括字面 '_'）以及首尾或连续出现的分隔符一律转义为 ~XX，保证字段内部
// 永远不会出现 "__"，从而各字段之间的分隔唯一可逆。
func KeyFor(c Coordinate) string {
	return strings.Join([]string{
		keyPrefix,
		normalizeField(c.Author, '-'),
		normalizeField(c.Name, '-'),
		normalizeField(c.Version, '.'),
	}, keyDelimiter)
}

func normalizeField(value string, separator byte) string {
	var b strings.Builder
	b.Grow(len(value))
	last := len(value) - 1
	for i := 0; i < len(value); i++ {
		ch := value[i]
		switch {
		case isAlnum(ch):
			b.WriteByte(ch)
		case ch == separator && i > 0 && i < last && value[i-1] != separator && value[i+1] != separator:
			b.WriteByte('_')
		default:
			fmt.Fprintf(&b, "%c%02X", escapeChar, ch)
		}
	}
	return b.String()
}

func isAlnum(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ('0' <= ch && ch <= '9')
}
