package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/fieldsync/internal/discovery"
	"github.com/muurk/fieldsync/internal/protocol"
)

// Run shows the interactive client until the user quits or the connection
// ends. It returns the final model state.
func Run(sender Sender, incoming <-chan protocol.ServerMessage, title string) (Model, error) {
	p := tea.NewProgram(NewModel(sender, incoming, title), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Model{}, err
	}
	return final.(Model), nil
}

// Param is one key/value line of a header.
type Param struct {
	Key   string
	Value string
}

// Printer provides methods for printing UI components to a writer.
// Non-interactive commands use it for styled output.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params ...Param) {
	p.Println(RenderHeader(title, command, params, p.width))
}

// PrintServices prints discovered servers, or a hint when there are none.
func (p *Printer) PrintServices(services []*discovery.Service) {
	p.Println(RenderServices(services))
}

// PrintError prints an error line
func (p *Printer) PrintError(title string, err error) {
	line := FailureMarker + "  " + title
	if err != nil {
		line += ": " + err.Error()
	}
	p.Println(ErrorMessageStyle.Render(line))
}

// RenderHeader renders a command header box
func RenderHeader(title, command string, params []Param, width int) string {
	titleLine := HeaderTitleStyle.Render(strings.ToUpper(title))
	commandLine := HeaderCommandStyle.Render(command)
	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	if len(params) > 0 {
		dividerWidth := max(width-6, 10) // Account for border and padding
		lines := []string{content, "  " + RenderHorizontalDivider(dividerWidth, "─")}
		for _, param := range params {
			lines = append(lines, HeaderParamKeyStyle.Render(param.Key+":")+" "+HeaderParamValueStyle.Render(param.Value))
		}
		content = lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2). // Account for border characters
		Render(content)
}

// RenderServices renders one block per discovered server.
func RenderServices(services []*discovery.Service) string {
	if len(services) == 0 {
		return ErrorMessageStyle.Render(FailureMarker+"  No servers found.") + "\n" +
			HeaderCommandStyle.Render("Check that the server runs with --advertise and multicast is allowed.")
	}

	var blocks []string
	for _, svc := range services {
		lines := []string{StatusStyle.Render(SuccessMarker + "  " + svc.Instance)}
		details := []Param{
			{"URL", svc.URL()},
			{"Host", svc.Hostname},
		}
		if svc.Version != "" {
			details = append(details, Param{"Version", svc.Version})
		}
		for _, d := range details {
			lines = append(lines, "   "+ResultKeyStyle.Render(d.Key+":")+" "+ResultValueStyle.Render(d.Value))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}
