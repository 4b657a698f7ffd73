package notify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The English text doubles as the key.
const (
	MsgGenerateSucceeded = "Image generated"
	MsgGenerateFailed    = "Generation failed"
	MsgConvertSucceeded  = "Image converted"
	MsgConvertFailed     = "Conversion failed"
	MsgUploadFirst       = "Please upload an image first"
	MsgLoginSucceeded    = "Logged in"
	MsgLoginFailed       = "Login failed"
	MsgUnknownError      = "Unknown error"
)

var chinese = map[string]string{
	MsgGenerateSucceeded: "生成成功",
	MsgGenerateFailed:    "生成失败",
	MsgConvertSucceeded:  "转换成功",
	MsgConvertFailed:     "转换失败",
	MsgUploadFirst:       "请先上传图像",
	MsgLoginSucceeded:    "登录成功",
	MsgLoginFailed:       "登录失败",
	MsgUnknownError:      "未知错误",
}

var (
	supported = []language.Tag{language.English, language.Chinese}
	matcher   = language.NewMatcher(supported)
	messages  = buildCatalog()
)

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, zh := range chinese {
		_ = b.SetString(language.English, key, key)
		_ = b.SetString(language.Chinese, key, zh)
	}
	return b
}

// Translator renders message keys for one locale.
type Translator struct {
	tag     language.Tag
	printer *message.Printer
}

// NewTranslator picks the closest supported locale; unknown locales fall back to English.
func NewTranslator(locale string) *Translator {
	tag := language.English
	if parsed, err := language.Parse(locale); err == nil {
		_, idx, conf := matcher.Match(parsed)
		if conf != language.No {
			tag = supported[idx]
		}
	}
	return &Translator{tag: tag, printer: message.NewPrinter(tag, message.Catalog(messages))}
}

// Locale returns the resolved language tag.
func (t *Translator) Locale() language.Tag {
	return t.tag
}

// T translates a message key.
func (t *Translator) T(key string) string {
	return t.printer.Sprintf(key)
}
