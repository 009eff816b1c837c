package artifact

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AntoineDubuc/conclave/core"
)

// FinalSynthesisName is the artifact name of the hub-and-spoke final synthesis.
const FinalSynthesisName = "final_synthesis.md"

const frontMatterDelim = "---"

// Header is the YAML front matter of an artifact.
type Header struct {
	// Round is the round number, or "final" for the final synthesis.
	Round       string    `yaml:"round"`
	Provider    string    `yaml:"provider,omitempty"`
	InstanceID  string    `yaml:"instance_id"`
	DisplayName string    `yaml:"display_name,omitempty"`
	Phase       string    `yaml:"phase,omitempty"`
	Edited      bool      `yaml:"edited,omitempty"`
	Timestamp   time.Time `yaml:"timestamp"`
}

// Name returns the artifact name for rec.
func Name(rec core.Record) string {
	if rec.Final {
		return FinalSynthesisName
	}
	return fmt.Sprintf("round_%d_%s.md", rec.Round, fileID(rec.InstanceID))
}

// fileID keeps an instance ID from escaping the run directory.
func fileID(id string) string {
	if core.ValidInstanceID(id) {
		return id
	}
	return core.SanitizeID(id)
}

// Render formats rec as markdown with a YAML front matter header.
func Render(rec core.Record, ts time.Time) ([]byte, error) {
	h := Header{
		Round:       fmt.Sprintf("%d", rec.Round),
		Provider:    rec.Provider,
		InstanceID:  rec.InstanceID,
		DisplayName: rec.DisplayName,
		Phase:       string(rec.Phase),
		Edited:      rec.Edited,
		Timestamp:   ts.UTC().Truncate(time.Second),
	}
	title := fmt.Sprintf("Round %d - %s", rec.Round, displayName(rec))
	if rec.Final {
		h.Round = "final"
		title = "Final Synthesis"
	}

	meta, err := yaml.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim + "\n")
	buf.Write(meta)
	buf.WriteString(frontMatterDelim + "\n\n")
	fmt.Fprintf(&buf, "# %s\n\n", title)
	buf.WriteString(rec.Content)
	if !strings.HasSuffix(rec.Content, "\n") {
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}

// Parse splits a rendered artifact into its header and body. The body
// excludes the generated title line.
func Parse(data []byte) (Header, string, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return Header{}, "", ErrMissingFrontMatter
	}

	rest := text[len(frontMatterDelim)+1:]
	meta, body, ok := strings.Cut(rest, "\n"+frontMatterDelim+"\n")
	if !ok {
		return Header{}, "", ErrMissingFrontMatter
	}

	var h Header
	if err := yaml.Unmarshal([]byte(meta), &h); err != nil {
		return Header{}, "", fmt.Errorf("parse front matter: %w", err)
	}

	body = strings.TrimPrefix(body, "\n")
	if strings.HasPrefix(body, "# ") {
		if _, after, found := strings.Cut(body, "\n"); found {
			body = strings.TrimPrefix(after, "\n")
		}
	}

	return h, body, nil
}

func displayName(rec core.Record) string {
	if rec.DisplayName != "" {
		return rec.DisplayName
	}
	return rec.InstanceID
}
