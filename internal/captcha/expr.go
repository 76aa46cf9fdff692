package captcha

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ErrParse is returned when OCR text cannot be read as an arithmetic expression.
var ErrParse = errors.New("captcha: unparseable expression")

// ParseError carries the normalized OCR text that failed to parse.
type ParseError struct {
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("captcha: %s (ocr %q)", e.Reason, e.Text)
}

func (e *ParseError) Unwrap() error { return ErrParse }

var exprPattern = regexp.MustCompile(`(\d+)([+\-x*])(\d+)`)

var multiplyReplacer = strings.NewReplacer("×", "x", "X", "x")

// Normalize maps the OCR confusions for multiplication onto 'x' and drops
// every whitespace rune.
func Normalize(text string) string {
	text = multiplyReplacer.Replace(strings.TrimSpace(text))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
}

// Parse evaluates the "<digits><op><digits>" expression found in OCR text.
// When no such expression is present a strict three character
// "digit op digit" form is attempted before giving up.
func Parse(text string) (int, error) {
	clean := Normalize(text)

	if m := exprPattern.FindStringSubmatch(clean); m != nil {
		a, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, &ParseError{Text: clean, Reason: "left operand out of range"}
		}
		b, err := strconv.Atoi(m[3])
		if err != nil {
			return 0, &ParseError{Text: clean, Reason: "right operand out of range"}
		}
		return apply(clean, a, m[2], b)
	}

	runes := []rune(clean)
	if len(runes) == 3 && isDigit(runes[0]) && isDigit(runes[2]) {
		return apply(clean, int(runes[0]-'0'), string(runes[1]), int(runes[2]-'0'))
	}
	return 0, &ParseError{Text: clean, Reason: "no expression"}
}

func apply(text string, a int, op string, b int) (int, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "x", "*":
		return a * b, nil
	default:
		return 0, &ParseError{Text: text, Reason: fmt.Sprintf("unknown operator %q", op)}
	}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
