package naming

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pixname-server-go/src/configs"
)

// ErrEmptyName 净化后结果为空，该候选不可用
var ErrEmptyName = errors.New("净化后的文件名为空")

// Policy 文件名净化策略
type Policy struct {
	CaseStyle   configs.CaseStyle
	AllowSpaces bool
}

var (
	// illegalChars 文件系统中非法的字符
	illegalChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	// spaceUnderscoreRuns 空白与下划线的连续段
	spaceUnderscoreRuns = regexp.MustCompile(`[\s_]+`)
	// hyphenRuns 连续连字符
	hyphenRuns = regexp.MustCompile(`-{2,}`)
	// whitespaceRuns 连续空白
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

var (
	lowerCaser = cases.Lower(language.Und)
	upperCaser = cases.Upper(language.Und)
	titleCaser = cases.Title(language.Und)
)

// Sanitize 将任意候选标题转为符合策略的合法文件名。
// 纯函数，确定且幂等：Sanitize(Sanitize(x)) == Sanitize(x)。
func Sanitize(candidate string, policy Policy) (string, error) {
	s := illegalChars.ReplaceAllString(candidate, "")

	if policy.AllowSpaces {
		s = strings.ReplaceAll(s, "_", " ")
		s = whitespaceRuns.ReplaceAllString(s, " ")
		s = strings.TrimSpace(s)
	} else {
		s = spaceUnderscoreRuns.ReplaceAllString(s, "-")
		s = hyphenRuns.ReplaceAllString(s, "-")
		s = strings.Trim(s, "-")
	}

	s = applyCase(s, policy.CaseStyle)

	if policy.AllowSpaces {
		s = strings.TrimSpace(s)
	} else {
		s = strings.Trim(s, "-")
	}

	if s == "" {
		return "", ErrEmptyName
	}
	return s, nil
}

// applyCase 在空格处理之后应用大小写风格
func applyCase(s string, style configs.CaseStyle) string {
	switch style {
	case configs.CaseLower:
		return lowerCaser.String(s)
	case configs.CaseUpper:
		return upperCaser.String(s)
	case configs.CaseTitle:
		return titleCaser.String(s)
	case configs.CaseSentence:
		return sentenceCase(s)
	default:
		return s
	}
}

// sentenceCase 仅首字母大写，其余小写
func sentenceCase(s string) string {
	lowered := lowerCaser.String(s)
	runes := []rune(lowered)
	if len(runes) == 0 {
		return lowered
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
