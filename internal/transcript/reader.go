// Package transcript reads assistant text out of Claude Code JSONL
// transcripts.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// maxLineSize bounds a single transcript line. Tool results can embed whole
// files, so this is well above bufio's 64KB default.
const maxLineSize = 10 * 1024 * 1024

// Entry is one transcript line.
type Entry struct {
	Type    string   `json:"type"`
	UUID    string   `json:"uuid,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// Message holds a role and content that is either a string or a list of
// blocks.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Texts returns the text content of m. Only text blocks count.
func (m *Message) Texts() []string {
	content := bytes.TrimSpace(m.Content)
	if len(content) == 0 {
		return nil
	}
	if content[0] == '"' {
		var s string
		if err := json.Unmarshal(content, &s); err != nil {
			return nil
		}
		return []string{s}
	}

	var blocks []block
	if err := json.Unmarshal(content, &blocks); err != nil {
		return nil
	}
	var texts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return texts
}

// IsHumanText reports whether a user message was typed by a person. Tool
// results are logged as user messages too but carry no text block.
func (m *Message) IsHumanText() bool {
	content := bytes.TrimSpace(m.Content)
	if len(content) == 0 {
		return false
	}
	if content[0] == '"' {
		return true
	}
	var blocks []block
	if err := json.Unmarshal(content, &blocks); err != nil {
		return false
	}
	for _, b := range blocks {
		if b.Type == "text" {
			return true
		}
	}
	return false
}

func (e *Entry) isRole(role string) bool {
	if e.Message == nil {
		return false
	}
	if e.Type == role {
		return true
	}
	return e.Type == "message" && e.Message.Role == role
}

// IsAssistant reports whether the entry is an assistant message.
func (e *Entry) IsAssistant() bool { return e.isRole("assistant") }

// IsHumanUser reports whether the entry starts a new conversation turn.
func (e *Entry) IsHumanUser() bool {
	return e.isRole("user") && e.Message.IsHumanText()
}

// Reader reads transcripts from disk.
type Reader struct{}

// NewReader creates a transcript reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadLastTexts returns the last n assistant texts, oldest first.
func (r *Reader) ReadLastTexts(path string, n int) ([]string, error) {
	entries, err := readEntries(path)
	if err != nil {
		return nil, err
	}
	return lastTexts(entries, n), nil
}

// ReadLastTurns returns every assistant text from the n-th last human user
// message to the end of the transcript. Without any user message it falls
// back to the last assistant text.
func (r *Reader) ReadLastTurns(path string, n int) ([]string, error) {
	if n < 1 {
		n = 1
	}
	entries, err := readEntries(path)
	if err != nil {
		return nil, err
	}

	var userIdx []int
	for i := range entries {
		if entries[i].IsHumanUser() {
			userIdx = append(userIdx, i)
		}
	}
	if len(userIdx) == 0 {
		log.Debug().Msg("No user messages in transcript, using last text")
		return lastTexts(entries, 1), nil
	}

	start := userIdx[0]
	if len(userIdx) >= n {
		start = userIdx[len(userIdx)-n]
	}

	var texts []string
	for i := start; i < len(entries); i++ {
		if entries[i].IsAssistant() {
			texts = append(texts, entries[i].Message.Texts()...)
		}
	}

	log.Debug().
		Int("turns", n).
		Int("text_count", len(texts)).
		Msg("Read transcript turns")
	return texts, nil
}

func lastTexts(entries []Entry, n int) []string {
	if n <= 0 {
		return nil
	}
	var texts []string
	for i := range entries {
		if entries[i].IsAssistant() {
			texts = append(texts, entries[i].Message.Texts()...)
		}
	}
	if len(texts) > n {
		texts = texts[len(texts)-n:]
	}
	return texts
}

// readEntries parses every well-formed line. Progress events and other
// unknown shapes are skipped.
func readEntries(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	lines, err := readLines(file)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(lines))
	skipped := 0
	for _, line := range lines {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}
	if skipped > 0 {
		log.Debug().Int("skipped", skipped).Msg("Skipped malformed transcript lines")
	}
	return entries, nil
}

func readLines(file *os.File) ([][]byte, error) {
	var lines [][]byte
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			log.Warn().Msg("Very long transcript line detected, skipping oversized lines")
			return readLinesSkippingOversized(file)
		}
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	return lines, nil
}

// readLinesSkippingOversized rereads the file and drops lines above
// maxLineSize. A truncated line would not parse anyway.
func readLinesSkippingOversized(file *os.File) ([][]byte, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file position: %w", err)
	}

	var lines [][]byte
	reader := bufio.NewReader(file)
	lineNumber := 0
	for {
		lineNumber++
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read line %d: %w", lineNumber, err)
		}

		line = bytes.TrimSpace(line)
		switch {
		case len(line) > maxLineSize:
			log.Warn().
				Int("line_number", lineNumber).
				Int("length", len(line)).
				Msg("Skipped oversized transcript line")
		case len(line) > 0:
			lines = append(lines, line)
		}

		if err == io.EOF {
			break
		}
	}
	return lines, nil
}

// FindLatest returns the most recently modified .jsonl file under
// projectsDir, normally ~/.claude/projects.
func FindLatest(projectsDir string) (string, error) {
	type candidate struct {
		path    string
		modTime int64
	}
	var files []candidate

	err := filepath.WalkDir(projectsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, candidate{path: path, modTime: info.ModTime().UnixNano()})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk projects directory: %w", err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no transcript files found in %s", projectsDir)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime > files[j].modTime })

	log.Debug().Str("file", files[0].path).Msg("Found latest transcript")
	return files[0].path, nil
}

// DefaultProjectsDir is where Claude Code stores session transcripts.
func DefaultProjectsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "projects"), nil
}
