// 本文件用于原始文本的结构化切分 将章节 问答 实体与主题统一抽取
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package segment

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"campus-assist/internal/lang"
)

const snippetRadius = 60

// Section 表示一个标题切分出的章节
type Section struct {
	Title        string `json:"title"`
	Body         string `json:"body"`
	SourceOffset int    `json:"sourceOffset"`
}

// FAQ 表示一对问答
type FAQ struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Language lang.Code `json:"language"`
}

// Entity 表示抽取出的类型化实体
type Entity struct {
	Kind           string `json:"kind"` // fee 或 date
	Value          string `json:"value"`
	ContextSnippet string `json:"contextSnippet"`
}

// Topic 表示按频次统计出的主题关键词
type Topic struct {
	Keyword   string  `json:"keyword"`
	Frequency int     `json:"frequency"`
	Relevance float64 `json:"relevance"`
}

// Result 表示一次切分的完整输出
type Result struct {
	Sections         []Section `json:"sections"`
	FAQs             []FAQ     `json:"faqs"`
	Entities         []Entity  `json:"entities"`
	Topics           []Topic   `json:"topics"`
	DetectedLanguage lang.Code `json:"detectedLanguage"`
}

// 标题模式按注册顺序扫描 不同模式在相近偏移上的重复命中不做去重
var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^[ \t]*\d+(?:\.\d+)*[.)][ \t]+\S[^\n]*$`),
	regexp.MustCompile(`(?mi)^[ \t]*(?:section|chapter|part|article)[ \t]+\d+[^\n]*$`),
	regexp.MustCompile(`(?m)^[ \t]*(?:अध्याय|खंड|प्रकरण|भाग)[^\n]*$`),
	regexp.MustCompile(`(?m)^[A-Z][A-Z0-9 ,&:\-]{3,59}$`),
}

var (
	faqQuestionMarker = regexp.MustCompile(`(?m)^[ \t]*(?:Q|प्रश्न)[:：.][ \t]*`)
	faqAnswerMarker   = regexp.MustCompile(`(?:^|[ \t\n])(?:A|उत्तर)[:：.][ \t]*`)
	faqBlankLine      = regexp.MustCompile(`\n[ \t]*\n`)
	faqInterrogative  = regexp.MustCompile(`(?m)^[ \t]*((?:What|How|When|Where|Why|Which|Who|Can|Is|Are|Do|Does|क्या|कैसे|कब|कहाँ|क्यों|कौन)\b[^\n?]*\?)[ \t]*\n[ \t]*([^\n]+)$`)
)

var feeAmountPattern = regexp.MustCompile(`(?:₹|Rs\.?[ \t]*|INR[ \t]*)([0-9][0-9,]*(?:\.[0-9]+)?)`)

var feeKeywords = []string{"fee", "fees", "tuition", "charge", "payment", "fine", "deposit", "शुल्क", "फीस", "भुगतान", "जुर्माना"}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)[ \t]+\d{1,2}(?:,[ \t]*\d{4})?\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}[ \t]+(?:January|February|March|April|May|June|July|August|September|October|November|December)(?:[ \t]+\d{4})?\b`),
	regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
	regexp.MustCompile(`(?:जनवरी|फ़रवरी|फरवरी|मार्च|अप्रैल|मई|जून|जुलाई|अगस्त|सितंबर|अक्टूबर|नवंबर|दिसंबर)[ \t]*[०-९0-9]{0,4}`),
}

// 主题关键词为静态多语言列表 统计为频次启发式而非 TF-IDF
var topicKeywords = []string{
	"admission", "fee", "fees", "scholarship", "examination", "exam",
	"hostel", "library", "placement", "attendance", "syllabus", "result",
	"registration", "semester", "deadline", "refund",
	"प्रवेश", "शुल्क", "छात्रवृत्ति", "परीक्षा", "छात्रावास", "पुस्तकालय",
	"परिणाम", "पंजीकरण", "समय सीमा",
}

// Segment 对原始文本执行全部有序抽取通道
// 纯函数 相同输入必然产生相同输出 零命中是合法结果而非错误
func Segment(rawText string) Result {
	return Result{
		Sections:         extractSections(rawText),
		FAQs:             extractFAQs(rawText),
		Entities:         extractEntities(rawText),
		Topics:           extractTopics(rawText),
		DetectedLanguage: lang.Detect(rawText),
	}
}

type headingMatch struct {
	start int
	end   int
	title string
}

// extractSections 合并所有标题模式的命中 按偏移排序后切出章节正文
// 不同模式可能在相同偏移重复命中 这是已知限制 按约定保留
func extractSections(text string) []Section {
	matches := make([]headingMatch, 0, 16)
	for _, pattern := range headingPatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			matches = append(matches, headingMatch{
				start: loc[0],
				end:   loc[1],
				title: strings.TrimSpace(text[loc[0]:loc[1]]),
			})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].start < matches[j].start
	})

	sections := make([]Section, 0, len(matches))
	for i, match := range matches {
		bodyEnd := len(text)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1].start
		}
		bodyStart := match.end
		if bodyStart > bodyEnd {
			bodyStart = bodyEnd
		}
		sections = append(sections, Section{
			Title:        match.title,
			Body:         strings.TrimSpace(text[bodyStart:bodyEnd]),
			SourceOffset: match.start,
		})
	}
	return sections
}

// extractFAQs 按问答标记与疑问词启发式抽取问答对
func extractFAQs(text string) []FAQ {
	faqs := append([]FAQ{}, extractMarkedFAQs(text)...)

	for _, groups := range faqInterrogative.FindAllStringSubmatch(text, -1) {
		question := strings.TrimSpace(groups[1])
		answer := strings.TrimSpace(groups[2])
		if question == "" || answer == "" {
			continue
		}
		faqs = append(faqs, FAQ{
			Question: question,
			Answer:   answer,
			Language: lang.Detect(question + " " + answer),
		})
	}
	return faqs
}

// extractMarkedFAQs 先定位全部问题标记 再在每个问题块内寻找答案标记
// 答案在下一个问题标记或空行处截断 保证多行答案可以被完整收集
func extractMarkedFAQs(text string) []FAQ {
	markers := faqQuestionMarker.FindAllStringIndex(text, -1)
	faqs := make([]FAQ, 0, len(markers))
	for i, marker := range markers {
		blockEnd := len(text)
		if i+1 < len(markers) {
			blockEnd = markers[i+1][0]
		}
		block := text[marker[1]:blockEnd]

		answerLoc := faqAnswerMarker.FindStringIndex(block)
		if answerLoc == nil {
			continue
		}
		question := strings.TrimSpace(block[:answerLoc[0]])
		answer := block[answerLoc[1]:]
		if blank := faqBlankLine.FindStringIndex(answer); blank != nil {
			answer = answer[:blank[0]]
		}
		answer = strings.TrimSpace(answer)
		if question == "" || answer == "" {
			continue
		}
		faqs = append(faqs, FAQ{
			Question: question,
			Answer:   answer,
			Language: lang.Detect(question + " " + answer),
		})
	}
	return faqs
}

// extractEntities 运行两类固定抽取器 费用金额与日期
func extractEntities(text string) []Entity {
	entities := make([]Entity, 0, 8)
	lower := strings.ToLower(text)

	for _, loc := range feeAmountPattern.FindAllStringSubmatchIndex(text, -1) {
		if len(loc) < 4 || loc[2] < 0 {
			continue
		}
		snippet := snippetAround(text, loc[0], loc[1])
		if !containsFeeKeyword(lower, loc[0], loc[1]) {
			continue
		}
		entities = append(entities, Entity{
			Kind:           "fee",
			Value:          text[loc[2]:loc[3]],
			ContextSnippet: snippet,
		})
	}

	for _, pattern := range datePatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			value := strings.TrimSpace(text[loc[0]:loc[1]])
			if value == "" {
				continue
			}
			entities = append(entities, Entity{
				Kind:           "date",
				Value:          value,
				ContextSnippet: snippetAround(text, loc[0], loc[1]),
			})
		}
	}
	return entities
}

// containsFeeKeyword 判断金额附近的窗口内是否出现费用关键词
func containsFeeKeyword(lowerText string, start, end int) bool {
	window := snippetAround(lowerText, start, end)
	for _, keyword := range feeKeywords {
		if strings.Contains(window, keyword) {
			return true
		}
	}
	return false
}

// extractTopics 按静态关键词做大小写无关的频次统计
// relevance = 频次/文本长度*1000 文档越长同频关键词相关度越低
func extractTopics(text string) []Topic {
	lower := strings.ToLower(text)
	textLen := utf8.RuneCountInString(text)
	if textLen == 0 {
		return []Topic{}
	}
	topics := make([]Topic, 0, len(topicKeywords))
	for _, keyword := range topicKeywords {
		freq := strings.Count(lower, keyword)
		if freq <= 0 {
			continue
		}
		topics = append(topics, Topic{
			Keyword:   keyword,
			Frequency: freq,
			Relevance: float64(freq) / float64(textLen) * 1000,
		})
	}
	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].Relevance == topics[j].Relevance {
			return topics[i].Keyword < topics[j].Keyword
		}
		return topics[i].Relevance > topics[j].Relevance
	})
	return topics
}

// snippetAround 以命中位置为中心截取固定宽度的上下文片段
func snippetAround(text string, start, end int) string {
	lo := start - snippetRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + snippetRadius
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return strings.TrimSpace(text[lo:hi])
}
