package lang

import "testing"

func TestDetectLatinText(t *testing.T) {
	if got := Detect("What is the admission fee for this semester?"); got != English {
		t.Fatalf("expected english, got %s", got)
	}
}

func TestDetectDevanagariText(t *testing.T) {
	if got := Detect("प्रवेश शुल्क कितना है"); got != Hindi {
		t.Fatalf("expected hindi, got %s", got)
	}
}

func TestDetectGujaratiText(t *testing.T) {
	if got := Detect("પ્રવેશ ફી કેટલી છે"); got != Gujarati {
		t.Fatalf("expected gujarati, got %s", got)
	}
}

func TestDetectMixedTextMajorityWins(t *testing.T) {
	// 天城文字符多于拉丁字符时应判定为印地语
	if got := Detect("fee शुल्क कितना है और कब देना है"); got != Hindi {
		t.Fatalf("expected hindi, got %s", got)
	}
}

func TestDetectEmptyAndSymbolsFallBack(t *testing.T) {
	if got := Detect(""); got != English {
		t.Fatalf("expected english for empty text, got %s", got)
	}
	if got := Detect("12345 !!! ₹₹₹"); got != English {
		t.Fatalf("expected english for symbol-only text, got %s", got)
	}
}

func TestDetectIsPure(t *testing.T) {
	input := "छात्रवृत्ति की अंतिम तिथि"
	first := Detect(input)
	second := Detect(input)
	if first != second {
		t.Fatalf("detect is not deterministic: %s vs %s", first, second)
	}
}

func TestParseFallsBackToBaseline(t *testing.T) {
	if got := Parse("MARATHI"); got != Marathi {
		t.Fatalf("expected marathi, got %s", got)
	}
	if got := Parse("klingon"); got != English {
		t.Fatalf("expected english fallback, got %s", got)
	}
}
