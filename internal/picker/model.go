package picker

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/beagle-term/beagle/internal/i18n"
	"github.com/beagle-term/beagle/internal/ipc"
	"github.com/beagle-term/beagle/internal/serial"
)

// Messages from the controller
type scanningMsg struct{}
type portsMsg struct {
	ports []serial.PortDescriptor
	err   error
}
type terminalInfoMsg ipc.TerminalInfo
type dismissMsg struct{}

// Actions carries the user's commands to the controller.
type Actions interface {
	Rescan()
	Confirm(portName string, baudRate int)
	Cancel()
}

// keyMap defines the picker's key bindings
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Connect  key.Binding
	BaudDown key.Binding
	BaudUp   key.Binding
	Rescan   key.Binding
	Help     key.Binding
	Cancel   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Connect, k.BaudUp, k.Rescan, k.Cancel, k.Help}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Connect},
		{k.BaudDown, k.BaudUp},
		{k.Rescan, k.Cancel, k.Help},
	}
}

func newKeyMap(cat *i18n.Catalog) keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Connect: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", cat.Get("PICKER_CONNECT")),
		),
		BaudDown: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", cat.Get("PICKER_CYCLE_BAUD")),
		),
		BaudUp: key.NewBinding(
			key.WithKeys("right", "l", "b"),
			key.WithHelp("→/b", cat.Get("PICKER_CYCLE_BAUD")),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", cat.Get("PICKER_RESCAN")),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", cat.Get("PICKER_CANCEL")),
		),
	}
}

// portItem wraps a PortDescriptor for use with bubbles/list
type portItem struct {
	port serial.PortDescriptor
}

func (p portItem) FilterValue() string {
	return p.port.Name + " " + p.port.Description
}

// portDelegate renders a port as a name line and a detail line
type portDelegate struct{}

func (portDelegate) Height() int                               { return itemHeight }
func (portDelegate) Spacing() int                              { return itemSpacing }
func (portDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (portDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	pi, ok := item.(portItem)
	if !ok {
		return
	}

	name := PortStyle.Render(pi.port.Label())
	if index == m.Index() {
		name = SelectedPortStyle.Render(cursorMarker + pi.port.Label())
	}

	detail := pi.port.Kind.String()
	if pi.port.SerialNumber != "" {
		detail += " • " + pi.port.SerialNumber
	}
	fmt.Fprintf(w, "%s\n%s", name, DetailStyle.Render(detail))
}

// Model is the bubbletea model of the port picker. It only renders state
// pushed by the controller and forwards key presses as Actions.
type Model struct {
	actions Actions
	catalog *i18n.Catalog
	keys    keyMap

	list    list.Model
	spinner spinner.Model
	help    help.Model

	rates []int
	rate  int

	scanning bool
	listErr  error
	info     ipc.TerminalInfo
	width    int
	height   int
	done     bool
}

// NewModel builds the picker model. rates lists the selectable baud rates
// and initial picks the starting one.
func NewModel(actions Actions, catalog *i18n.Catalog, rates []int, initial int) Model {
	if catalog == nil {
		catalog = i18n.Default()
	}
	if len(rates) == 0 {
		rates = []int{initial}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	l := list.New([]list.Item{}, portDelegate{}, MinWidth, 10)
	l.Title = catalog.Get("PICKER_TITLE")
	l.Styles.Title = TitleStyle
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)

	m := Model{
		actions:  actions,
		catalog:  catalog,
		keys:     newKeyMap(catalog),
		list:     l,
		spinner:  s,
		help:     help.New(),
		rates:    rates,
		scanning: true,
	}
	for i, r := range rates {
		if r == initial {
			m.rate = i
		}
	}
	return m
}

// BaudRate returns the rate currently selected.
func (m Model) BaudRate() int {
	return m.rates[m.rate]
}

// Done reports whether the picker has been dismissed.
func (m Model) Done() bool {
	return m.done
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(contentWidth(msg.Width), max(msg.Height-listChrome, itemHeight))
		m.help.Width = contentWidth(msg.Width)
		return m, nil

	case scanningMsg:
		m.scanning = true
		m.listErr = nil
		return m, m.spinner.Tick

	case portsMsg:
		m.scanning = false
		m.listErr = msg.err
		items := make([]list.Item, len(msg.ports))
		for i, p := range msg.ports {
			items[i] = portItem{port: p}
		}
		return m, m.list.SetItems(items)

	case terminalInfoMsg:
		m.info = ipc.TerminalInfo(msg)
		if len(m.info.AcceptLanguages) > 0 {
			if cat, err := i18n.New(m.info.AcceptLanguages...); err == nil {
				m.catalog = cat
				m.keys = newKeyMap(cat)
				m.list.Title = cat.Get("PICKER_TITLE")
			}
		}
		return m, nil

	case dismissMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		if !m.scanning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.done {
			return m, nil
		}
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.done = true
			m.actions.Cancel()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Connect):
			if pi, ok := m.list.SelectedItem().(portItem); ok && !m.scanning {
				// The controller dismisses the view once the choice is sent.
				m.actions.Confirm(pi.port.Name, m.BaudRate())
			}
			return m, nil
		case key.Matches(msg, m.keys.Rescan):
			m.actions.Rescan()
			return m, nil
		case key.Matches(msg, m.keys.BaudUp):
			m.rate = (m.rate + 1) % len(m.rates)
			return m, nil
		case key.Matches(msg, m.keys.BaudDown):
			m.rate = (m.rate + len(m.rates) - 1) % len(m.rates)
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	if m.info.Width > 0 {
		b.WriteString(InfoStyle.Render(m.catalog.Get("PICKER_TERMINAL",
			strconv.Itoa(m.info.Width), strconv.Itoa(m.info.Height))))
		b.WriteString("\n")
	}

	switch {
	case m.scanning:
		b.WriteString(TitleStyle.Render(m.catalog.Get("PICKER_TITLE")))
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + " " + m.catalog.Get("PICKER_SCANNING"))
	case m.listErr != nil:
		b.WriteString(TitleStyle.Render(m.catalog.Get("PICKER_TITLE")))
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.catalog.Get("PICKER_LIST_FAILED", m.listErr.Error())))
	case len(m.list.Items()) == 0:
		b.WriteString(TitleStyle.Render(m.catalog.Get("PICKER_TITLE")))
		b.WriteString("\n")
		b.WriteString(m.catalog.Get("PICKER_NO_PORTS"))
	default:
		b.WriteString(m.list.View())
	}

	b.WriteString("\n")
	b.WriteString(BaudStyle.Render(m.catalog.Get("PICKER_BAUD", strconv.Itoa(m.BaudRate()))))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))

	width := MinWidth
	if m.width > 0 {
		width = contentWidth(m.width)
	}
	return BoxStyle.Width(width).Render(lipgloss.NewStyle().MaxWidth(width).Render(b.String()))
}
