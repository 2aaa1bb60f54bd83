package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/HeitererGarten/fao56-pump-control/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateClass": func(state string) string {
		switch state {
		case "IRRIGATING":
			return "on"
		case "IDLE":
			return "off"
		default:
			return "alert"
		}
	},
	"timeOrUnknown": func(s string) string {
		if s == "" {
			return "not synced"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Pump {{.Valve.ID}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.alert { color: orange; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Pump {{.Valve.ID}}</h1>

<h2>Valve</h2>
<table>
<tr><th>State</th><td class="{{stateClass .Valve.State}}">{{.Valve.State}}</td></tr>
<tr><th>Pump</th><td class="{{if .Valve.PumpActive}}on{{else}}off{{end}}">{{if .Valve.PumpActive}}running{{else}}stopped{{end}}</td></tr>
<tr><th>Remaining</th><td>{{.Valve.RemainingTimeMinutes}} min</td></tr>
<tr><th>Irrigation allowed</th><td>{{if .Valve.IrrigationAllowed}}yes{{else}}no{{end}}</td></tr>
<tr><th>Local time</th><td>{{timeOrUnknown .Valve.CurrentTime}}</td></tr>
<tr><th>Window</th><td>07:00-09:00, 16:00-19:00</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Command topic</th><td>{{.Config.CommandTopic}}</td></tr>
<tr><th>Status topic</th><td>{{.Config.StatusTopic}}</td></tr>
</table>

<h2>Transitions</h2>
<table>
<tr><th>Started</th><td>{{.Counts.Started}}</td></tr>
<tr><th>Resumed</th><td>{{.Counts.Resumed}}</td></tr>
<tr><th>Halted</th><td>{{.Counts.Halted}}</td></tr>
<tr><th>Forced halts</th><td>{{.Counts.ForcedHalts}}</td></tr>
<tr><th>Stopped</th><td>{{.Counts.Stopped}}</td></tr>
<tr><th>Completed</th><td>{{.Counts.Completed}}</td></tr>
<tr><th>Rejected commands</th><td>{{.Counts.Rejected}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Duration bounds</th><td>&gt; {{.Config.MinMinutes}} and &le; {{.Config.MaxMinutes}} min</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Status interval</th><td>{{if eq .Config.StatusIntervalMs 0}}disabled{{else}}{{.Config.StatusIntervalMs}}ms{{end}}</td></tr>
<tr><th>Timezone</th><td>{{.Config.Timezone}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, v status.View) {
	// The template needs Uptime as a field and the valve in its wire form.
	data := struct {
		status.View
		Uptime time.Duration
		Valve  status.Message
	}{
		View:   v,
		Uptime: v.Uptime(),
		Valve:  status.NewMessage(v.Status),
	}
	indexTmpl.Execute(w, data)
}
