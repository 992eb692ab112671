package Knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Knowledge is the static event context spliced into every decision request:
// what the event is, when things happen and the answers the organizer has
// already written down.
type Knowledge struct {
	EventName string          `yaml:"event_name"`
	Organizer string          `yaml:"organizer"`
	Schedule  []ScheduleEntry `yaml:"schedule"`
	Faq       []FaqEntry      `yaml:"faq"`
	Notes     []string        `yaml:"notes"`
}

type ScheduleEntry struct {
	When string `yaml:"when"`
	What string `yaml:"what"`
}

type FaqEntry struct {
	Question string `yaml:"q"`
	Answer   string `yaml:"a"`
}

func Load(path string) (*Knowledge, error) {

	data, readFileError := os.ReadFile(path)
	if readFileError != nil {
		return nil, fmt.Errorf("reading knowledge file: %w", readFileError)
	}

	var knowledge Knowledge
	if unmarshalError := yaml.Unmarshal(data, &knowledge); unmarshalError != nil {
		return nil, fmt.Errorf("parsing knowledge file: %w", unmarshalError)
	}

	return &knowledge, nil
}

// RenderBlock flattens the knowledge into the plain text block the prompt
// templates splice in.
func (k *Knowledge) RenderBlock() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Event: %s\n", k.EventName)
	fmt.Fprintf(&b, "Organizer: %s\n", k.Organizer)

	if len(k.Schedule) > 0 {
		b.WriteString("Schedule:\n")
		for _, entry := range k.Schedule {
			fmt.Fprintf(&b, "  %s - %s\n", entry.When, entry.What)
		}
	}

	if len(k.Faq) > 0 {
		b.WriteString("FAQ:\n")
		for _, entry := range k.Faq {
			fmt.Fprintf(&b, "  Q: %s\n  A: %s\n", entry.Question, entry.Answer)
		}
	}

	for _, note := range k.Notes {
		fmt.Fprintf(&b, "Note: %s\n", note)
	}

	return b.String()
}

// LoadTemplate reads <dir>/<name>.txt.
func LoadTemplate(dir string, name string) (string, error) {
	data, readFileError := os.ReadFile(filepath.Join(dir, name+".txt"))
	if readFileError != nil {
		return "", fmt.Errorf("reading template %s: %w", name, readFileError)
	}
	return string(data), nil
}
