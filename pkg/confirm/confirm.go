// Package confirm asks the operator before destructive steps.
package confirm

import (
	"errors"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"
)

// Prompts shown before the archive and upgrade stages.
const (
	ArchivePrompt = "This will attempt to backup the wordpress database and all content. Do you want to proceed?"
	UpgradePrompt = "This will attempt to upgrade WordPress core and all plugins. Do you want to proceed?"
)

// ErrNotInteractive is returned when stdin is not a terminal.
var ErrNotInteractive = errors.New("stdin is not a terminal")

// Confirmer answers a yes/no question.
type Confirmer interface {
	Confirm(message string) (bool, error)
}

// Func adapts a function to Confirmer.
type Func func(message string) (bool, error)

func (f Func) Confirm(message string) (bool, error) {
	return f(message)
}

// Always answers every question with answer.
func Always(answer bool) Confirmer {
	return Func(func(string) (bool, error) { return answer, nil })
}

// Survey prompts on the terminal. The default answer is no.
type Survey struct {
	In  *os.File
	Out *os.File

	isTerminal func(fd int) bool
	ask        func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error
}

func NewSurvey() *Survey {
	return &Survey{
		In:         os.Stdin,
		Out:        os.Stdout,
		isTerminal: term.IsTerminal,
		ask:        survey.AskOne,
	}
}

func (s *Survey) Confirm(message string) (bool, error) {
	if !s.isTerminal(int(s.In.Fd())) {
		return false, ErrNotInteractive
	}

	var proceed bool
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	if err := s.ask(prompt, &proceed, survey.WithStdio(s.In, s.Out, os.Stderr)); err != nil {
		return false, fmt.Errorf("survey failed: %w", err)
	}
	return proceed, nil
}
