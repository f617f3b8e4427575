// Package prompt wraps the interactive questions the CLI asks when a flag
// was not provided. Automation sets STORM_SIMS_SKIP_PROMPTS=true to take
// every default without a terminal.
package prompt

import (
	"fmt"
	"os"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
)

func skipPrompts() bool {
	return os.Getenv("STORM_SIMS_SKIP_PROMPTS") == "true"
}

// Int asks for an integer, offering def as the default answer. Values below
// min are rejected.
func Int(message string, def, min int) (int, error) {
	if skipPrompts() {
		return def, nil
	}

	answer := strconv.Itoa(def)
	q := &survey.Input{
		Message: message,
		Default: answer,
	}
	if err := survey.AskOne(q, &answer, survey.WithValidator(survey.Required)); err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(answer)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", answer, err)
	}
	if value < min {
		return 0, fmt.Errorf("value must be at least %d", min)
	}
	return value, nil
}

// Select asks the user to pick one of options, offering def as the default.
func Select(message string, options []string, def string) (string, error) {
	if skipPrompts() || len(options) == 1 {
		return def, nil
	}

	result := def
	q := &survey.Select{
		Message: message,
		Options: options,
		Default: def,
	}
	if err := survey.AskOne(q, &result); err != nil {
		return "", err
	}
	return result, nil
}
