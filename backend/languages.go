package backend

import "strings"

// languageNames maps ISO 639-1 codes to display names for the subtitle
// language picker. Codes outside this table are treated as unsupported and
// filtered from metadata results.
var languageNames = map[string]string{
	"ar":  "Arabic",
	"bg":  "Bulgarian",
	"bn":  "Bengali",
	"ca":  "Catalan",
	"cs":  "Czech",
	"da":  "Danish",
	"de":  "German",
	"el":  "Greek",
	"en":  "English",
	"es":  "Spanish",
	"et":  "Estonian",
	"fa":  "Persian",
	"fi":  "Finnish",
	"fil": "Filipino",
	"fr":  "French",
	"he":  "Hebrew",
	"hi":  "Hindi",
	"hr":  "Croatian",
	"hu":  "Hungarian",
	"id":  "Indonesian",
	"it":  "Italian",
	"ja":  "Japanese",
	"ko":  "Korean",
	"lt":  "Lithuanian",
	"lv":  "Latvian",
	"ms":  "Malay",
	"nl":  "Dutch",
	"no":  "Norwegian",
	"pl":  "Polish",
	"pt":  "Portuguese",
	"ro":  "Romanian",
	"ru":  "Russian",
	"sk":  "Slovak",
	"sl":  "Slovenian",
	"sr":  "Serbian",
	"sv":  "Swedish",
	"th":  "Thai",
	"tr":  "Turkish",
	"uk":  "Ukrainian",
	"vi":  "Vietnamese",
	"zh":  "Chinese",
}

// baseLanguageCode normalizes a subtitle track code to its base language,
// e.g. "en-US" or "pt_BR" to "en" and "pt".
func baseLanguageCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return code
}

// IsSupportedSubtitleLanguage reports whether the code (or its base
// language) is in the display table.
func IsSupportedSubtitleLanguage(code string) bool {
	_, ok := languageNames[baseLanguageCode(code)]
	return ok
}

// LanguageDisplayName returns the display name for a language code, or the
// code itself when unknown.
func LanguageDisplayName(code string) string {
	if name, ok := languageNames[baseLanguageCode(code)]; ok {
		return name
	}
	return code
}
