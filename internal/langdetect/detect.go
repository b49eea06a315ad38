package langdetect

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Unknown is reported whenever detection fails or is unreliable. Detection is
// best-effort annotation and must never fail a query.
const Unknown = "unknown"

type Detector interface {
	Detect(text string) string
}

func New() Detector {
	return whatlangDetector{}
}

type whatlangDetector struct{}

func (whatlangDetector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return Unknown
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return Unknown
	}
	code := whatlanggo.LangToString(info.Lang)
	if code == "" {
		return Unknown
	}
	return code
}
