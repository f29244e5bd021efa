// 本文件用于基于 Unicode 区块的语言识别
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package lang

import "strings"

// Code 表示受支持的语言标识
type Code string

const (
	// English 是基线语言 平局与零匹配时的默认值
	English Code = "english"
	// Hindi 表示印地语（天城文）
	Hindi Code = "hindi"
	// Marathi 表示马拉地语（同为天城文 仅能由上游元数据指定）
	Marathi Code = "marathi"
	// Gujarati 表示古吉拉特语
	Gujarati Code = "gujarati"
	// Punjabi 表示旁遮普语（古木基文）
	Punjabi Code = "punjabi"
)

type scriptRange struct {
	lo   rune
	hi   rune
	code Code
}

// 天城文同时覆盖印地语与马拉地语 这里统一归到印地语
// 马拉地语只能由调用方通过元数据显式标注
var scriptRanges = []scriptRange{
	{lo: 0x0900, hi: 0x097F, code: Hindi},
	{lo: 0x0A80, hi: 0x0AFF, code: Gujarati},
	{lo: 0x0A00, hi: 0x0A7F, code: Punjabi},
}

// Supported 返回受支持语言的固定集合
func Supported() []Code {
	return []Code{English, Hindi, Marathi, Gujarati, Punjabi}
}

// IsSupported 判断语言标识是否在受支持集合内
func IsSupported(code Code) bool {
	switch code {
	case English, Hindi, Marathi, Gujarati, Punjabi:
		return true
	default:
		return false
	}
}

// Parse 解析语言标识 不认识的值回退到基线语言
func Parse(raw string) Code {
	code := Code(strings.ToLower(strings.TrimSpace(raw)))
	if IsSupported(code) {
		return code
	}
	return English
}

// Detect 按脚本区块计数识别文本语言
// 匹配最多者胜出 平局与零匹配回退到基线语言
func Detect(text string) Code {
	counts := make(map[Code]int, len(scriptRanges)+1)
	for _, r := range text {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' {
			counts[English]++
			continue
		}
		for _, blk := range scriptRanges {
			if r >= blk.lo && r <= blk.hi {
				counts[blk.code]++
				break
			}
		}
	}

	best := English
	bestCount := 0
	tied := false
	for _, code := range []Code{English, Hindi, Gujarati, Punjabi} {
		count := counts[code]
		if count > bestCount {
			best = code
			bestCount = count
			tied = false
		} else if count == bestCount && count > 0 && code != best {
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return English
	}
	return best
}
