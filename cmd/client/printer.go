package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"chat-client/internal/models"
)

// printer renders events as terminal lines.
type printer struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, now: time.Now}
}

func (p *printer) Emit(e models.Event) {
	line, ok := p.format(e)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func (p *printer) format(e models.Event) (string, bool) {
	switch e.Kind {
	case models.EventChat:
		ts := e.Timestamp
		if ts.IsZero() {
			ts = p.now()
		}
		return fmt.Sprintf("[%s] <%s> %s", ts.Local().Format("15:04:05"), e.Username, e.Text), true
	case models.EventMention:
		return fmt.Sprintf("\a! %s mentioned you", e.Username), true
	case models.EventSystem, models.EventNotice, models.EventHistoryComplete, models.EventHealth:
		return "* " + e.Text, true
	case models.EventServerInfo:
		if e.Info == nil {
			return "", false
		}
		return fmt.Sprintf("* Server: %s | Online: %d/%d", e.Info.ServerName, e.Info.CurrentOnline, e.Info.TotalMaxConnections), true
	case models.EventRoster:
		return "* Members: " + strings.Join(e.Members, ", "), true
	case models.EventDiagnostic:
		if e.Err != nil {
			return fmt.Sprintf("! %s: %v", e.Text, e.Err), true
		}
		return "! " + e.Text, true
	case models.EventUnknown:
		return fmt.Sprintf("! %s: %s", e.Text, e.Raw), true
	}
	return "", false
}
