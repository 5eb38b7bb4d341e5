package lang

import "strings"

// Chinese 是中文的规范代码，触发拼音预处理。
const Chinese = "zh-cn"

// Default 是无法识别语言时的回退代码。
const Default = "en"

// Language 是合成引擎支持的一种语言。
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var supported = []Language{
	{"en", "English"},
	{"es", "Spanish"},
	{"fr", "French"},
	{"de", "German"},
	{"it", "Italian"},
	{"pt", "Portuguese"},
	{"pl", "Polish"},
	{"tr", "Turkish"},
	{"ru", "Russian"},
	{"nl", "Dutch"},
	{"cs", "Czech"},
	{"ar", "Arabic"},
	{Chinese, "Chinese"},
	{"ja", "Japanese"},
	{"ko", "Korean"},
	{"hu", "Hungarian"},
	{"hi", "Hindi"},
}

// aliases 把检测器输出映射到规范代码；键均为小写、以 - 分隔。
var aliases = map[string]string{
	"zh":      Chinese,
	"zh-cn":   Chinese,
	"zh-hans": Chinese,
	"zh-tw":   Chinese,
	"zh-hk":   Chinese,
	"zh-hant": Chinese,
	"cmn":     Chinese,
	"jp":      "ja",
}

func init() {
	for _, l := range supported {
		aliases[l.Code] = l.Code
	}
}

// Supported 返回全部支持的语言。
func Supported() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	return out
}

// IsSupported 判断 code 是否是规范代码。
func IsSupported(code string) bool {
	for _, l := range supported {
		if l.Code == code {
			return true
		}
	}
	return false
}

// Canonicalize 将任意语言标签（如 en_US、pt-BR、zh-TW）映射到规范代码。
// 先整体查表，再按主语言子标签查表。
func Canonicalize(raw string) (string, bool) {
	tag := strings.ToLower(strings.TrimSpace(raw))
	tag = strings.ReplaceAll(tag, "_", "-")
	if tag == "" {
		return "", false
	}
	if code, ok := aliases[tag]; ok {
		return code, true
	}
	if i := strings.IndexByte(tag, '-'); i > 0 {
		if code, ok := aliases[tag[:i]]; ok {
			return code, true
		}
	}
	return "", false
}
