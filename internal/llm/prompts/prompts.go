package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

// MaxLectureRunes bounds the lecture text included in a prompt.
const MaxLectureRunes = 20000

var blankLinesRegex = regexp.MustCompile(`\n{3,}`)

// Lang selects the prompt wording.
type Lang string

const (
	// LangRU is the original Russian wording.
	LangRU Lang = "ru"
	// LangEN is the English wording.
	LangEN Lang = "en"
)

var validLangs = map[Lang]bool{
	LangRU: true,
	LangEN: true,
}

var (
	loadOnce        sync.Once
	loadErr         error
	systemTemplates map[Lang]string
	userTemplates   map[Lang]*template.Template
)

// IsValidLang checks if a prompt language is supported.
func IsValidLang(l string) bool {
	return validLangs[Lang(l)]
}

// UserData holds template data for the user prompt.
type UserData struct {
	NumQuestions int
	LectureText  string
}

// Load parses the prompt templates from fsys. Only the first call has an effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		systemTemplates = make(map[Lang]string)
		userTemplates = make(map[Lang]*template.Template)

		for l := range validLangs {
			systemFile := "templates/system_" + string(l) + ".txt"
			userFile := "templates/user_" + string(l) + ".txt"

			systemContent, err := fs.ReadFile(fsys, systemFile)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + systemFile + ": " + err.Error())
				return
			}
			systemTemplates[l] = strings.TrimSpace(string(systemContent))

			userContent, err := fs.ReadFile(fsys, userFile)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + userFile + ": " + err.Error())
				return
			}
			tmpl, err := template.New("user").Parse(string(userContent))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + userFile + ": " + err.Error())
				return
			}
			userTemplates[l] = tmpl
		}
	})
	return loadErr
}

// Build returns the system and user messages for generating numQuestions questions from lectureText.
func Build(lang Lang, numQuestions int, lectureText string) (system, user string, err error) {
	if err := Load(templateFS); err != nil {
		return "", "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := userTemplates[lang]
	if !ok {
		return "", "", errors.New("invalid prompt language: " + string(lang))
	}

	var buf bytes.Buffer
	data := UserData{
		NumQuestions: numQuestions,
		LectureText:  sanitizeLecture(lectureText),
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return systemTemplates[lang], strings.TrimSpace(buf.String()), nil
}

func sanitizeLecture(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	text = blankLinesRegex.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if n := utf8.RuneCountInString(text); n > MaxLectureRunes {
		slog.Warn("lecture text truncated for prompt", "runes", n, "kept", MaxLectureRunes)
		runes := []rune(text)
		text = string(runes[:MaxLectureRunes])
	}
	return text
}
