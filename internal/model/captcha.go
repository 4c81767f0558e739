package model

// CaptchaImage is one raw captcha bitmap, optionally carrying ground truth
// when it came from a labeled fixture file. Immutable once constructed.
type CaptchaImage struct {
	Raw   []byte `json:"-"`
	Label string `json:"label,omitempty"` // 4-digit ground truth, "" when unknown
	Path  string `json:"path,omitempty"`  // fixture path, "" for live fetches
}

// Labeled reports whether the image carries a valid ground-truth label.
func (c CaptchaImage) Labeled() bool {
	return IsDigits(c.Label)
}

// DigitCount is the fixed number of digits in the captcha layout.
const DigitCount = 4

// Recognizer identities, recorded on every RecognitionResult.
const (
	RecognizerTemplate   = "template"
	RecognizerClassifier = "tesseract"
	RecognizerVision     = "vision"
)

// RecognitionResult is one recognizer's guess for one captcha image.
// Produced once per (image, recognizer) pair and never mutated.
type RecognitionResult struct {
	Recognizer string              `json:"recognizer"`
	Digits     string              `json:"digits"`     // 4 runes; '?' marks a position with no candidate
	Confidence [DigitCount]float64 `json:"confidence"` // per-position, in [0,1]
}

// Valid reports whether the result is a complete 4-digit guess.
func (r RecognitionResult) Valid() bool {
	return IsDigits(r.Digits)
}

// IsDigits reports whether s is exactly DigitCount characters of 0-9.
func IsDigits(s string) bool {
	if len(s) != DigitCount {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
