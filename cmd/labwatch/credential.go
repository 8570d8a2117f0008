package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const tokenEnvVar = "GITLAB_ACCESS_TOKEN"

// ctrlV is what some terminals deliver when Ctrl+V is pressed at a hidden
// prompt instead of pasting the clipboard.
const ctrlV = "\x16"

const pasteWarning = `Unable to read pasted input; this is a known issue with some terminals (e.g. Command Prompt).
You may opt for one of the following alternatives:
  1. Look for a way to paste without using the CTRL+V keyboard shortcut.
     This may possibly be a right-click on the mouse, or a menu option.
  2. Provide the access token as the ` + "`" + tokenEnvVar + "`" + ` environment variable.
  3. Provide the access token using the --token command line option.`

var errPastedControl = errors.New("invalid password input")

// tokenSource resolves the access token: explicit value first, then the
// environment, then an interactive prompt.
type tokenSource struct {
	explicit string
	lookup   func(string) (string, bool)
	prompt   func() (string, error)
}

func (s tokenSource) resolve() (string, error) {
	if s.explicit != "" {
		return s.explicit, nil
	}
	if s.lookup != nil {
		if v, ok := s.lookup(tokenEnvVar); ok && v != "" {
			return v, nil
		}
	}
	if s.prompt == nil {
		return "", errors.New("access token is required")
	}

	token, err := s.prompt()
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("no access token provided")
	}
	return token, nil
}

// checkToken rejects a token consisting of a literal Ctrl+V and prints
// guidance to w.
func checkToken(token string, w io.Writer, colorize bool) error {
	if token != ctrlV {
		return nil
	}

	warn := color.New(color.FgHiYellow)
	if colorize {
		warn.EnableColor()
	} else {
		warn.DisableColor()
	}
	_, _ = warn.Fprintln(w, pasteWarning)
	return errPastedControl
}

// promptToken asks for the token on out and reads it from in, hiding the
// input when in is a terminal.
func promptToken(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "GitLab access token: ")

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("failed to read access token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(out)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
