package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fahmaliyi/govault/vault"
)

type model struct {
	vault     *vault.Vault
	items     []vault.Item
	cursor    int
	state     string // "table" or "showItem"
	selected  *vault.Item
	pathInput textinput.Model
	msg       string
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	msgStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("57")).Foreground(lipgloss.Color("0"))
)

// RunTUI starts the interactive TUI over an already-unlocked vault.
func RunTUI(v *vault.Vault) {
	m := model{
		vault: v,
		items: v.Items(),
		state: "table",
	}

	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Println("Error starting TUI:", err)
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.state {
	case "table":
		return updateTable(m, msg)
	case "showItem":
		return updateShowItem(m, msg)
	default:
		return m, nil
	}
}

func (m model) View() string {
	switch m.state {
	case "table":
		return viewTable(m)
	case "showItem":
		return viewShowItem(m)
	default:
		return "Unknown state"
	}
}

func updateTable(m model, msg tea.Msg) (model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "j", "down":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "enter":
			if len(m.items) > 0 {
				it := m.items[m.cursor]
				m.selected = &it
				m.state = "showItem"
			}
		case "a":
			AddFileCLI(m.vault)
			m.items = m.vault.Items()

		case "d":
			if len(m.items) > 0 {
				it := m.items[m.cursor]
				if err := m.vault.DeleteItem(it); err != nil {
					m.msg = "Delete failed: " + err.Error()
				} else {
					m.msg = "Item deleted"
				}
				m.items = m.vault.Items()
				if m.cursor >= len(m.items) && m.cursor > 0 {
					m.cursor--
				}
			}
		case "e":
			if len(m.items) > 0 {
				it := m.items[m.cursor]
				m.msg = exportPrompt(m.vault, it)
			}
		}
	}
	return m, nil
}

func exportPrompt(v *vault.Vault, it vault.Item) string {
	fmt.Print("\nExport to path: ")
	reader := bufio.NewReader(os.Stdin)
	dest, _ := reader.ReadString('\n')
	dest = strings.TrimSpace(dest)
	if err := v.ExportItem(it, dest); err != nil {
		return "Export failed: " + err.Error()
	}
	return "Exported to " + dest
}

func viewTable(m model) string {
	s := titleStyle.Render("Vault Items") + "\n\n"
	for i, it := range m.items {
		line := fmt.Sprintf("%-36s  %-24s  %10d bytes", it.ID, it.OriginalFileName, it.OriginalByteCount)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		s += line + "\n"
	}
	if m.msg != "" {
		s += "\n" + msgStyle.Render(m.msg)
	}
	s += "\nCommands: j/k=move, enter=show, a=add, e=export, d=delete, q=quit"
	return s
}

func updateShowItem(m model, msg tea.Msg) (model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			m.state = "table"
			m.selected = nil
		}
	}
	return m, nil
}

func viewShowItem(m model) string {
	it := m.selected
	s := fmt.Sprintf("ID: %s\nName: %s\nExtension: %s\nSize: %d bytes\nAdded: %s\nEncrypted file: %s\n",
		it.ID, it.OriginalFileName, it.OriginalFileExtension, it.OriginalByteCount, it.AddedAt, it.EncryptedFileName)
	s += "\nPress Esc to return"
	return s
}
