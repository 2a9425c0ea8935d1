// Package security はユーザー入力のサニタイズ機能を提供する。
//
// NameSanitizer はサインアップ時の表示名やOAuthプロバイダーから受け取った名前から
// HTMLタグを除去し、プレーンテキストとして保存できる形に整える。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNameLength は表示名の最大文字数（rune数）。
const MaxNameLength = 100

// NameSanitizer は表示名のサニタイズ機能のインターフェース。
type NameSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、連続する空白を1つにまとめた文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// nameSanitizer はbluemondayのStrictPolicyによるNameSanitizer実装。
// bluemonday.Policyはスレッドセーフなので共有して使う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerの新しいインスタンスを生成する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は表示名をプレーンテキスト化する。
// StrictPolicyはエンティティをエスケープして返すため、保存前にアンエスケープする。
// 出力時のエスケープはテンプレート側で行う。
func (s *nameSanitizer) Sanitize(raw string) string {
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > MaxNameLength {
		text = string([]rune(text)[:MaxNameLength])
	}
	return text
}

var _ NameSanitizer = (*nameSanitizer)(nil)
