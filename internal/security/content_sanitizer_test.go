package security

import (
	"testing"
)

// TestSanitize_StripsTags はHTMLタグが除去されることを検証する。
func TestSanitize_StripsTags(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "The Go Programming Language",
			want:  "The Go Programming Language",
		},
		{
			name:  "強調タグを除去する",
			input: "<b>Clean</b> Code",
			want:  "Clean Code",
		},
		{
			name:  "scriptタグは中身ごと除去する",
			input: `<script>alert("xss")</script>Refactoring`,
			want:  "Refactoring",
		},
		{
			name:  "imgのイベント属性を含むタグを除去する",
			input: `<img src=x onerror="alert(1)">Design Patterns`,
			want:  "Design Patterns",
		},
		{
			name:  "アンパサンドは元の文字として保存する",
			input: "Tom & Jerry",
			want:  "Tom & Jerry",
		},
		{
			name:  "連続する空白と前後の空白をまとめる",
			input: "  Donald   E.\tKnuth \n",
			want:  "Donald E. Knuth",
		},
		{
			name:  "空文字列は空文字列",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力に対する出力が安定していることを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	input := "<p>Structure and <em>Interpretation</em></p>"

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(first)
	if first != second {
		t.Errorf("Sanitize is not idempotent: %q -> %q", first, second)
	}
}

// TestTextSanitizer_ImplementsInterface はインターフェースを満たすことを検証する。
func TestTextSanitizer_ImplementsInterface(t *testing.T) {
	var _ TextSanitizer = NewTextSanitizer()
}
