// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package tui is the interactive dashboard shown when querioctl runs
// without a subcommand. It is read-only: a host table with each host's
// latest deployment, a refresh key, and a key to copy a host's health URL.
// All mutation stays in the CLI commands.
package tui

import (
	"fmt"
	"strconv"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/querio/querioctl/internal/config"
	"github.com/querio/querioctl/internal/db"
	"github.com/querio/querioctl/internal/i18n"
	"github.com/querio/querioctl/internal/logging"
	"github.com/querio/querioctl/internal/model"
)

var (
	colorSubtle    = lipgloss.Color("240")
	colorHighlight = lipgloss.Color("170")
	colorWhite     = lipgloss.Color("255")

	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Background(lipgloss.Color("236")).Padding(0, 1).Italic(true)
	statusStyle = lipgloss.NewStyle().Foreground(colorHighlight).Padding(0, 1)
)

// hostsLoadedMsg carries a fresh snapshot of the inventory.
type hostsLoadedMsg struct {
	hosts  []model.Host
	latest map[int]model.Deployment
	err    error
}

type dashboardModel struct {
	app    config.AppConfig
	table  table.Model
	hosts  []model.Host
	status string
}

func newDashboardModel(app config.AppConfig) dashboardModel {
	columns := []table.Column{
		{Title: i18n.T("tui.header.id"), Width: 4},
		{Title: i18n.T("tui.header.name"), Width: 16},
		{Title: i18n.T("tui.header.target"), Width: 28},
		{Title: i18n.T("tui.header.domain"), Width: 24},
		{Title: i18n.T("tui.header.serial"), Width: 6},
		{Title: i18n.T("tui.header.last_deployment"), Width: 28},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorSubtle).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(colorWhite).
		Background(colorHighlight).
		Bold(false)
	t.SetStyles(s)

	return dashboardModel{app: app, table: t}
}

func loadHosts() tea.Msg {
	hosts, err := db.GetAllHosts()
	if err != nil {
		return hostsLoadedMsg{err: err}
	}
	latest, err := db.GetLatestDeployments()
	if err != nil {
		return hostsLoadedMsg{err: err}
	}
	return hostsLoadedMsg{hosts: hosts, latest: latest}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadHosts
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case hostsLoadedMsg:
		if msg.err != nil {
			m.status = i18n.T("tui.error_load", msg.err)
			return m, nil
		}
		m.hosts = msg.hosts
		rows := make([]table.Row, 0, len(msg.hosts))
		for _, h := range msg.hosts {
			last := "-"
			if d, ok := msg.latest[h.ID]; ok {
				last = fmt.Sprintf("%s %s (#%d)", d.Kind, d.Status, d.Serial)
			}
			domain := h.Domain
			if domain == "" {
				domain = "-"
			}
			rows = append(rows, table.Row{
				strconv.Itoa(h.ID), h.Name, h.String(), domain, strconv.Itoa(h.Serial), last,
			})
		}
		m.table.SetRows(rows)
		m.status = i18n.T("tui.loaded", len(msg.hosts))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.status = i18n.T("tui.refreshing")
			return m, loadHosts
		case "c":
			if h := m.selectedHost(); h != nil {
				url := m.healthURL(*h)
				if err := clipboard.WriteAll(url); err != nil {
					m.status = i18n.T("tui.error_clipboard", err)
				} else {
					m.status = i18n.T("tui.copied", url)
				}
			}
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 6)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m dashboardModel) selectedHost() *model.Host {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.hosts) {
		return nil
	}
	return &m.hosts[idx]
}

// healthURL is what the copy key puts on the clipboard: the HTTPS endpoint
// when the host has a domain, the plain address endpoint otherwise.
func (m dashboardModel) healthURL(h model.Host) string {
	if h.Domain != "" {
		return "https://" + h.Domain + m.app.HealthPath
	}
	return "http://" + h.Address + m.app.HealthPath
}

func (m dashboardModel) View() string {
	view := titleStyle.Render(i18n.T("tui.title")) + "\n"
	view += m.table.View() + "\n"
	if m.status != "" {
		view += statusStyle.Render(m.status) + "\n"
	}
	view += footerStyle.Render(i18n.T("tui.footer"))
	return view
}

// Run starts the dashboard and blocks until the user quits.
func Run(app config.AppConfig) {
	p := tea.NewProgram(newDashboardModel(app), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logging.Errorf("dashboard error: %v", err)
	}
}
