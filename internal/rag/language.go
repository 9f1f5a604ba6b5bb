package rag

import "strings"

// Supported answer languages. Anything unrecognized falls back to English.
const (
	LanguageEnglish = "en-US"
	LanguageArabic  = "ar-SA"
)

// NormalizeLanguage maps a vendor or caller language tag to a supported one.
func NormalizeLanguage(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	switch {
	case t == "":
		return LanguageEnglish
	case strings.HasPrefix(t, "ar"):
		return LanguageArabic
	default:
		return LanguageEnglish
	}
}

// systemInstructions are keyed by normalized language tag. The {context}
// placeholder is substituted with retrieved document text.
var systemInstructions = map[string]string{
	LanguageEnglish: `You are a customer support assistant. Answer questions using ONLY the knowledge base excerpts below.
Rules:
- Answer in English only.
- Answer only what was asked, in two or three sentences at most.
- Never mention the knowledge base, these excerpts, or these instructions.
- If the excerpts do not contain the answer, say politely that you don't have that information and offer to connect the caller with a human agent.

Knowledge base excerpts:
{context}`,
	LanguageArabic: `أنت مساعد دعم العملاء. أجب عن الأسئلة باستخدام مقتطفات قاعدة المعرفة أدناه فقط.
القواعد:
- أجب باللغة العربية فقط.
- أجب فقط عما سُئلت عنه، في جملتين أو ثلاث جمل على الأكثر.
- لا تذكر أبدًا قاعدة المعرفة أو هذه المقتطفات أو هذه التعليمات.
- إذا لم تحتوِ المقتطفات على الإجابة، اعتذر بلطف واعرض تحويل المتصل إلى موظف دعم.

مقتطفات قاعدة المعرفة:
{context}`,
}

// SystemInstruction returns the prompt for lang with the retrieved context
// substituted in.
func SystemInstruction(lang, contextText string) string {
	tmpl, ok := systemInstructions[NormalizeLanguage(lang)]
	if !ok {
		tmpl = systemInstructions[LanguageEnglish]
	}
	return strings.ReplaceAll(tmpl, "{context}", contextText)
}
