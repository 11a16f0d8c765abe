// Package monitor renders live device telemetry in the terminal by joining
// the relay websocket as a regular participant.
package monitor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"

	"github.com/nattapongd/rehab-hub/internal/hub"
)

type Monitor struct {
	url  string
	app  *tview.Application
	view *tview.TextView

	state     hub.State
	connected bool
	updatedAt time.Time
}

func New(url string) *Monitor {
	view := tview.NewTextView().SetDynamicColors(true)
	view.SetBorder(true).SetTitle(" rehab-hub telemetry ")
	return &Monitor{
		url:  url,
		app:  tview.NewApplication(),
		view: view,
	}
}

// parseSensor extracts the device state from one relay frame. Control and
// unknown frames return ok=false.
func parseSensor(raw []byte) (hub.State, bool) {
	var env struct {
		Type    string    `json:"type"`
		Payload hub.State `json:"payload"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != "sensor" {
		return hub.State{}, false
	}
	return env.Payload, true
}

func (m *Monitor) render() {
	m.view.Clear()
	status := "[red]disconnected[-]"
	if m.connected {
		status = "[green]live[-]"
	}
	running := "no"
	if m.state.Running {
		running = "[blue]yes[-]"
	}
	fmt.Fprintf(m.view, "\n  %s\n\n", status)
	fmt.Fprintf(m.view, "  Angle        %8.2f°\n", m.state.Angle)
	fmt.Fprintf(m.view, "  Repetitions  %8d\n", m.state.Rep)
	fmt.Fprintf(m.view, "  Running      %8s\n", running)
	if m.state.DeviceStatus != "" {
		fmt.Fprintf(m.view, "  Device       %8s\n", m.state.DeviceStatus)
	}
	if !m.updatedAt.IsZero() {
		fmt.Fprintf(m.view, "\n  updated %s\n", m.updatedAt.Format("15:04:05"))
	}
	fmt.Fprintf(m.view, "\n  q to quit\n")
}

// Run connects to the relay and blocks until the user quits. The websocket
// is re-dialed with a short backoff if the server goes away.
func (m *Monitor) Run() error {
	m.view.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' || event.Key() == tcell.KeyEscape {
			m.app.Stop()
			return nil
		}
		return event
	})

	stop := make(chan struct{})
	go m.readLoop(stop)
	defer close(stop)

	m.render()
	return m.app.SetRoot(m.view, true).Run()
}

func (m *Monitor) readLoop(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(m.url, nil)
		if err != nil {
			m.setConnected(false)
			select {
			case <-stop:
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		m.setConnected(true)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if state, ok := parseSensor(raw); ok {
				m.app.QueueUpdateDraw(func() {
					m.state = state
					m.updatedAt = time.Now()
					m.render()
				})
			}
		}
		conn.Close()
		m.setConnected(false)
	}
}

func (m *Monitor) setConnected(up bool) {
	m.app.QueueUpdateDraw(func() {
		m.connected = up
		m.render()
	})
}
