package prompts

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name       string
		lang       Lang
		wantSystem string
		wantUser   string
	}{
		{"russian", LangRU, "Никаких комментариев, только чистый JSON!", "Сгенерируй 10 вопросов на основе текста:\n"},
		{"english", LangEN, "nothing but plain JSON!", "Generate 10 questions based on the following text:\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, user, err := Build(tt.lang, 10, "Goroutines are cheap.")
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if !strings.Contains(system, tt.wantSystem) {
				t.Errorf("system prompt missing %q:\n%s", tt.wantSystem, system)
			}
			if !strings.Contains(system, `"correctAnswer"`) {
				t.Error("system prompt should describe the correctAnswer field")
			}
			if !strings.HasPrefix(user, tt.wantUser) {
				t.Errorf("user prompt = %q, want prefix %q", user, tt.wantUser)
			}
			if !strings.HasSuffix(user, "Goroutines are cheap.") {
				t.Errorf("user prompt should end with the lecture text, got %q", user)
			}
		})
	}
}

func TestBuildInvalidLang(t *testing.T) {
	if _, _, err := Build(Lang("de"), 10, "text"); err == nil {
		t.Error("expected error for unsupported language")
	}
}

func TestIsValidLang(t *testing.T) {
	if !IsValidLang("ru") || !IsValidLang("en") {
		t.Error("ru and en should be valid")
	}
	if IsValidLang("RU") || IsValidLang("") {
		t.Error("only lowercase known languages are valid")
	}
}

func TestSanitizeLecture(t *testing.T) {
	t.Run("normalizes whitespace", func(t *testing.T) {
		got := sanitizeLecture("  one\r\ntwo\n\n\n\n\nthree\x00  ")
		if got != "one\ntwo\n\nthree" {
			t.Errorf("sanitizeLecture() = %q", got)
		}
	})

	t.Run("truncates long text", func(t *testing.T) {
		var logs bytes.Buffer
		prev := slog.Default()
		slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
		t.Cleanup(func() { slog.SetDefault(prev) })

		long := strings.Repeat("ж", MaxLectureRunes+50)
		got := sanitizeLecture(long)
		if n := utf8.RuneCountInString(got); n != MaxLectureRunes {
			t.Errorf("expected %d runes, got %d", MaxLectureRunes, n)
		}
		out := logs.String()
		if !strings.Contains(out, "lecture text truncated") || !strings.Contains(out, "runes=20050") || !strings.Contains(out, "kept=20000") {
			t.Errorf("expected truncation warning, got %q", out)
		}
	})

	t.Run("short text is not reported", func(t *testing.T) {
		var logs bytes.Buffer
		prev := slog.Default()
		slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
		t.Cleanup(func() { slog.SetDefault(prev) })

		sanitizeLecture("short lecture")
		if logs.Len() != 0 {
			t.Errorf("unexpected log output %q", logs.String())
		}
	})
}
