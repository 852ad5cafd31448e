// Command shadetop is a live terminal dashboard over cmd/shaded's
// websocket stream, built the way cmd/tui-viewfinder builds its sky view:
// a bubbletea model driven by stream messages read off a channel,
// rendered with lipgloss.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")).Padding(0, 1)
	lockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	openStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// deviceView mirrors internal/api's wire projection of controller state.
type deviceView struct {
	UniqueID       string `json:"unique_id"`
	Mode           string `json:"mode"`
	CurrentHeight  *int   `json:"current_height"`
	CurrentTilt    *int   `json:"current_tilt"`
	Moving         bool   `json:"moving"`
	ManualLock     bool   `json:"manual_lock"`
	ExternalLock   bool   `json:"external_lock"`
	Manipulation   bool   `json:"manipulation"`
	SolarHeatingOn bool   `json:"solar_heating_status"`
}

type streamMsg []deviceView
type streamErrMsg error

type model struct {
	devices []deviceView
	err     error
	updates chan tea.Msg
}

func (m model) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

func waitForUpdate(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case streamMsg:
		m.devices = msg
		m.err = nil
		return m, waitForUpdate(m.updates)
	case streamErrMsg:
		m.err = msg
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-16s %-10s %6s %6s %-8s %-8s", "DEVICE", "MODE", "HEIGHT", "TILT", "LOCKS", "SOLAR")))
	b.WriteString("\n")

	sorted := append([]deviceView(nil), m.devices...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UniqueID < sorted[j].UniqueID })

	for _, d := range sorted {
		height, tilt := "-", "-"
		if d.CurrentHeight != nil {
			height = fmt.Sprintf("%d", *d.CurrentHeight)
		}
		if d.CurrentTilt != nil {
			tilt = fmt.Sprintf("%d", *d.CurrentTilt)
		}

		locks := "none"
		lockStyle := openStyle
		if d.ManualLock || d.ExternalLock || d.Manipulation {
			var parts []string
			if d.ManualLock {
				parts = append(parts, "manual")
			}
			if d.ExternalLock {
				parts = append(parts, "external")
			}
			if d.Manipulation {
				parts = append(parts, "manip")
			}
			locks = strings.Join(parts, "+")
			lockStyle = lockedStyle
		}

		solar := dimStyle.Render("off")
		if d.SolarHeatingOn {
			solar = openStyle.Render("on")
		}

		moving := ""
		if d.Moving {
			moving = " (moving)"
		}

		b.WriteString(fmt.Sprintf("%-16s %-10s %6s %6s %-8s %s%s\n",
			d.UniqueID, d.Mode, height, tilt, lockStyle.Render(locks), solar, dimStyle.Render(moving)))
	}

	if m.err != nil {
		b.WriteString("\n" + errStyle.Render("stream error: "+m.err.Error()))
	}
	b.WriteString("\n" + dimStyle.Render("q to quit"))
	return b.String()
}

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "Base URL of the shaded operator API")
	username := flag.String("username", "admin", "Operator username")
	password := flag.String("password", "", "Operator password")
	flag.Parse()

	token, err := login(*apiURL, *username, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	updates := make(chan tea.Msg, 8)
	go streamDevices(*apiURL, token, updates)

	p := tea.NewProgram(model{updates: updates}, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func login(apiURL, username, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(apiURL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// streamDevices dials the operator API's websocket endpoint and forwards
// every frame onto updates, reconnecting with the same credential on drop.
func streamDevices(apiURL, token string, updates chan tea.Msg) {
	u, err := url.Parse(apiURL)
	if err != nil {
		updates <- streamErrMsg(err)
		return
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/api/v1/ws"

	header := http.Header{"Authorization": []string{"Bearer " + token}}

	for {
		conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
		if err != nil {
			updates <- streamErrMsg(err)
			return
		}

		for {
			var devices []deviceView
			if err := conn.ReadJSON(&devices); err != nil {
				updates <- streamErrMsg(err)
				conn.Close()
				break
			}
			updates <- streamMsg(devices)
		}
	}
}
