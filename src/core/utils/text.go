package utils

import (
	"regexp"
	"strings"
)

// markdownChars 模型输出中常见的Markdown语法符号
var markdownRe = regexp.MustCompile("[\\*#\\-+=>`~_\\[\\](){}|\\\\]")

// RemoveMarkdownSyntax 移除模型输出中的Markdown语法符号
func RemoveMarkdownSyntax(text string) string {
	cleaned := markdownRe.ReplaceAllString(text, " ")
	return cleaned
}

// TrimWrappingQuotes 去掉模型输出首尾成对的引号
func TrimWrappingQuotes(text string) string {
	s := strings.TrimSpace(text)
	pairs := [][2]string{
		{`"`, `"`},
		{"'", "'"},
		{"“", "”"},
		{"‘", "’"},
		{"«", "»"},
	}

	for changed := true; changed; {
		changed = false
		for _, p := range pairs {
			if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
				s = strings.TrimSpace(s[len(p[0]) : len(s)-len(p[1])])
				changed = true
			}
		}
	}

	return s
}

// CleanCaption 清理模型返回的候选标题：去引号、去Markdown、压缩空白
func CleanCaption(text string) string {
	s := TrimWrappingQuotes(text)
	s = RemoveMarkdownSyntax(s)
	s = strings.Join(strings.Fields(s), " ")
	return s
}
