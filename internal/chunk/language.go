package chunk

// Language detection looks at a bounded prefix of the page.
const (
	languageSampleRunes = 500
	arabicThreshold     = 50
)

// DetectLanguage returns "ar" when more than 50 of the first 500 runes are
// in the Arabic block (U+0600 to U+06FF), and "en" otherwise.
func DetectLanguage(text string) string {
	var seen, arabic int
	for _, r := range text {
		if seen == languageSampleRunes {
			break
		}
		seen++
		if r >= 0x0600 && r <= 0x06FF {
			arabic++
		}
	}
	if arabic > arabicThreshold {
		return "ar"
	}
	return "en"
}
