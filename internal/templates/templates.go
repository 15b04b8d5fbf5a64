// Package templates renders task descriptions and progress comments from
// HTML templates. Built-in templates are embedded; a directory containing
// files of the same name overrides them one by one.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"

	"kanbansync/internal/utils"
)

// Template file names, both embedded and in an override directory.
const (
	TaskDescriptionFile = "task_description.html"
	ProgressCommentFile = "progress_comment.html"
)

//go:embed assets/*.html
var assets embed.FS

// DescriptionData fills the task description template. Every *HTML field
// is an already rendered fragment and is inserted verbatim.
type DescriptionData struct {
	GoalHTML             string
	RequirementsHTML     string
	SolutionHTML         string
	DefinitionOfDoneHTML string
	PRSectionHTML        string
	SummaryHTML          string
	Progress             string
	Date                 string
}

// CommentData fills the progress comment template.
type CommentData struct {
	SummaryHTML    string
	CompletedHTML  string
	InProgressHTML string
	NextStepsHTML  string
	BlockersHTML   string
	Done           int
	Total          int
	Percent        int
}

// Set holds the parsed templates.
type Set struct {
	description *template.Template
	comment     *template.Template
}

// Load parses the templates, preferring files in dir when dir is non-empty
// and contains them.
func Load(dir string) (*Set, error) {
	desc, err := parse(dir, TaskDescriptionFile)
	if err != nil {
		return nil, err
	}
	comment, err := parse(dir, ProgressCommentFile)
	if err != nil {
		return nil, err
	}
	return &Set{description: desc, comment: comment}, nil
}

// Default returns the embedded templates.
func Default() *Set {
	set, err := Load("")
	if err != nil {
		panic(err)
	}
	return set
}

func parse(dir, name string) (*template.Template, error) {
	if dir != "" {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			utils.Debugf("using template %s", path)
			tmpl, perr := template.New(name).Option("missingkey=error").Parse(string(content))
			if perr != nil {
				return nil, fmt.Errorf("failed to parse template %s: %w", path, perr)
			}
			return tmpl, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read template %s: %w", path, err)
		}
	}

	content, err := assets.ReadFile("assets/" + name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Option("missingkey=error").Parse(string(content))
}

// Description renders a new task description.
func (s *Set) Description(data DescriptionData) (string, error) {
	return execute(s.description, data)
}

// Comment renders a progress comment.
func (s *Set) Comment(data CommentData) (string, error) {
	return execute(s.comment, data)
}

func execute(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
