package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	cl "kingpot/internal/cli"
	"kingpot/internal/game"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	watchTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	watchLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(12)
	watchKing  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	watchErr   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	watchBox   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func newWatchCmd(apiBase *string) *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of the current round",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			if every <= 0 {
				every = 2 * time.Second
			}
			m := newWatchModel(newClient(apiBase), sess.AccessToken, every)
			_, err = tea.NewProgram(m).Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&every, "every", 2*time.Second, "refresh interval")
	return cmd
}

type gameMsg struct {
	view      game.GameView
	remaining *game.RemainingView
	err       error
}

type refreshMsg struct{}

type watchModel struct {
	client  *cl.Client
	token   string
	every   time.Duration
	spinner spinner.Model

	view      game.GameView
	remaining *game.RemainingView
	err       error
	loaded    bool
	updated   time.Time
}

func newWatchModel(client *cl.Client, token string, every time.Duration) watchModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(watchKing))
	return watchModel{client: client, token: token, every: every, spinner: sp}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m watchModel) fetch() tea.Cmd {
	client, token := m.client, m.token
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		view, err := client.Game(ctx, token)
		if err != nil {
			return gameMsg{err: err}
		}
		msg := gameMsg{view: view}
		if view.RemainingExposed {
			if r, err := client.Remaining(ctx, token); err == nil {
				msg.remaining = &r
			}
		}
		return msg
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}
	case gameMsg:
		m.err = msg.err
		if msg.err == nil {
			m.view, m.remaining, m.loaded = msg.view, msg.remaining, true
			m.updated = time.Now()
		}
		return m, tea.Tick(m.every, func(time.Time) tea.Msg { return refreshMsg{} })
	case refreshMsg:
		return m, m.fetch()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitle.Render(fmt.Sprintf("Round %d", m.view.Round)))
	b.WriteString("  ")
	b.WriteString(m.spinner.View())
	b.WriteString("\n\n")

	if !m.loaded {
		b.WriteString("loading…\n")
	} else {
		king := m.view.King
		if king == "" {
			king = "(vacant)"
		}
		state := "open"
		if m.view.Ended {
			state = "settled"
		}
		row := func(label, value string) {
			b.WriteString(watchLabel.Render(label))
			b.WriteString(value)
			b.WriteString("\n")
		}
		row("State", state)
		row("King", watchKing.Render(king))
		row("Pot", formatMicros(m.view.PotMicros)+" coins")
		row("Claim fee", formatMicros(m.view.ClaimFeeMicros)+" coins")
		row("Claimants", fmt.Sprintf("%d (min %d)", m.view.Claimants, m.view.MinClaimants))
		if m.remaining != nil {
			row("Remaining", formatRemaining(m.remaining.RemainingSecs))
		}
		row("Updated", m.updated.Format("15:04:05"))
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(watchErr.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\nr refresh · q quit")
	return watchBox.Render(b.String()) + "\n"
}
