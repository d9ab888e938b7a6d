package stt

import "strings"

// Language selectors understood by the recognition service.
const (
	DevPIDMandarin   = 1537
	DevPIDCantonese  = 1637
	DevPIDEnglish    = 1737
	DevPIDSichuanese = 1837
)

// DevPID maps a UI language tag onto the service's dev_pid. Unknown tags fall
// back to Mandarin.
func DevPID(language string) int {
	lang := strings.ToLower(strings.TrimSpace(language))
	lang = strings.ReplaceAll(lang, "_", "-")

	switch {
	case lang == "yue", lang == "zh-hk", lang == "cantonese":
		return DevPIDCantonese
	case lang == "sichuan", lang == "zh-sc", lang == "sichuanese":
		return DevPIDSichuanese
	case lang == "en", strings.HasPrefix(lang, "en-"), lang == "english":
		return DevPIDEnglish
	default:
		return DevPIDMandarin
	}
}
