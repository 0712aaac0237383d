// Package messages provides the user-facing message catalog. Defaults
// are embedded; deployments can override them with a YAML file.
package messages

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultCatalog []byte

// Catalog holds all user-visible strings. Strings containing %s
// placeholders are filled with fmt.Sprintf.
type Catalog struct {
	Welcome struct {
		Morning string `yaml:"morning"`
		Day     string `yaml:"day"`
		Evening string `yaml:"evening"`
		Intro   string `yaml:"intro"`
	} `yaml:"welcome"`

	Error  string `yaml:"error"`
	Help   string `yaml:"help"`
	Cancel string `yaml:"cancel"`

	QnA struct {
		Result       string `yaml:"result"`
		NotSure      string `yaml:"not_sure"`
		Solution     string `yaml:"solution"`
		NothingFound string `yaml:"nothing_found"`
	} `yaml:"qna"`

	Helpful struct {
		Prompt string `yaml:"prompt"`
		Thanks string `yaml:"thanks"`
	} `yaml:"helpful"`

	Retry struct {
		Prompt string `yaml:"prompt"`
		Again  string `yaml:"again"`
	} `yaml:"retry"`

	Invalid       string `yaml:"invalid"`
	InvalidGiveUp string `yaml:"invalid_giveup"`

	Ticket struct {
		PromptVoluntary string `yaml:"prompt_voluntary"`
		PromptForced    string `yaml:"prompt_forced"`
		Decline         string `yaml:"decline"`
		AlreadySent     string `yaml:"already_sent"`
		ThankYou        string `yaml:"thank_you"`
		MailError       string `yaml:"mail_error"`
		StorageError    string `yaml:"storage_error"`
		Card            struct {
			Title    string `yaml:"title"`
			Text     string `yaml:"text"`
			Fallback string `yaml:"fallback"`
		} `yaml:"card"`
		Mail struct {
			Subject string `yaml:"subject"`
			Body    string `yaml:"body"`
		} `yaml:"mail"`
	} `yaml:"ticket"`

	YesNo struct {
		YesMarkers []string `yaml:"yes_markers"`
		NoMarkers  []string `yaml:"no_markers"`
	} `yaml:"yesno"`
}

// Load returns the embedded default catalog, with overrides from path
// applied on top when path is non-empty. Keys missing from the override
// file keep their defaults.
func Load(path string) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(defaultCatalog, &c); err != nil {
		return nil, fmt.Errorf("parse embedded catalog: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog override %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse catalog override %s: %w", path, err)
		}
	}

	if len(c.YesNo.YesMarkers) == 0 || len(c.YesNo.NoMarkers) == 0 {
		return nil, fmt.Errorf("catalog must define yesno markers")
	}

	return &c, nil
}

// Greeting returns the time-of-day dependent welcome line.
func (c *Catalog) Greeting(now time.Time) string {
	switch h := now.Hour(); {
	case h < 11:
		return c.Welcome.Morning
	case h < 18:
		return c.Welcome.Day
	default:
		return c.Welcome.Evening
	}
}
