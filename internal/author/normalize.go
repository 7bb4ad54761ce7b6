// Package author は上流フィードの多様な著者表現を正規化する。
package author

import "strings"

// Normalize は上流から渡された著者の生の値を正規化する。
// 戻り値の第2値は著者が得られたかどうかを示す。
// 判定は以下の形状の網羅的な場合分けで行う:
//   - nil → 不在
//   - 文字列 → そのまま返す
//   - nameフィールドが文字列の配列であるオブジェクト → ", " で結合
//   - nameフィールドが単一文字列であるオブジェクト → その文字列
//   - その他の形状 → 不在
//
// 副作用はなく、いかなる入力に対しても失敗しない。
func Normalize(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case map[string]any:
		name, ok := v["name"]
		if !ok {
			return "", false
		}
		switch n := name.(type) {
		case string:
			return n, true
		case []any:
			parts := make([]string, 0, len(n))
			for _, e := range n {
				s, ok := e.(string)
				if !ok {
					return "", false
				}
				parts = append(parts, s)
			}
			return strings.Join(parts, ", "), true
		case []string:
			return strings.Join(n, ", "), true
		default:
			return "", false
		}
	default:
		return "", false
	}
}
