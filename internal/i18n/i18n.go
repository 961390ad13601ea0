// Package i18n holds the localized strings and the canned topic catalog.
// Chinese is the default; English is the only other supported language.
package i18n

import "advisorai/pkg/domain"

// Apology replaces a partially streamed reply when generation fails.
func Apology(lang domain.Language) string {
	if lang == domain.LangEN {
		return "Sorry, an error occurred while searching for real-time information."
	}
	return "抱歉，检索实时信息时出现错误。"
}

// DefaultTitle names a conversation that has no user message yet.
func DefaultTitle(lang domain.Language) string {
	if lang == domain.LangEN {
		return "New Chat"
	}
	return "新对话"
}

// SystemInstruction is the advisor persona prompt, including the control
// marker grammar the client strips out of the display text.
func SystemInstruction(lang domain.Language) string {
	if lang == domain.LangEN {
		return "You are a professional NA life advisor. Use search for real-time data. " +
			"Requirements: 1. Be extremely concise, use lists and Emojis often; " +
			"2. Keep responses compact and direct; " +
			"3. Use proper Markdown with bold keywords; " +
			"4. Maintain a friendly and professional tone; " +
			"5. You may embed control markers that the client renders as UI: " +
			"[STEP: n/m] for progress through a multi-step answer, " +
			"[CHART_DATA: {\"type\":\"bar\",\"title\":\"...\",\"labels\":[...],\"values\":[...]}] for one chart, " +
			"[SUGGEST: \"...\"] for a follow-up question suggestion, and " +
			"[OPTION: \"...\"] for a quick-reply choice. Markers never appear in the visible text."
	}
	return "你是一个极简、专业的北美生活顾问。请用中文回答。你会利用搜索工具获取最新信息。" +
		"要求：1. 语言极其精炼，多用列表和Emoji，避免长句；" +
		"2. 回答要紧凑，直接切中要点；" +
		"3. 使用标准的 Markdown 格式，适当加粗关键词；" +
		"4. 保持亲切专业的语气；" +
		"5. 可以嵌入客户端渲染为界面的控制标记：" +
		"[STEP: n/m] 表示多步回答的进度，" +
		"[CHART_DATA: {\"type\":\"bar\",\"title\":\"...\",\"labels\":[...],\"values\":[...]}] 表示一张图表，" +
		"[SUGGEST: \"...\"] 表示推荐的追问，" +
		"[OPTION: \"...\"] 表示快捷回复选项。标记不会出现在可见文本中。"
}
