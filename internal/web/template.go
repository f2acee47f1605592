package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/time-scheduler/internal/logic"
	"github.com/sweeney/time-scheduler/internal/status"
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
	"stateClass": func(s logic.State) string {
		switch s {
		case logic.StateActive:
			return "on"
		case logic.StateInactive:
			return "off"
		default:
			return "unknown"
		}
	},
	"utc": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Time Scheduler</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Time Scheduler</h1>

<h2>Scheduler</h2>
<table>
<tr><th>State</th><td>{{.State}}{{if .Maintenance}} (maintenance){{end}}</td></tr>
<tr><th>Last tick</th><td>{{if .HasReport}}{{utc .Report.Time}}{{else}}never{{end}}</td></tr>
{{if .Report.SilentConfigured}}<tr><th>Silent mode</th><td class="{{if .Report.SilentActive}}on{{else}}off{{end}}">{{if .Report.SilentActive}}ON{{else}}OFF{{end}} ({{.Report.SilentWindow}}{{if not .Report.SilentEnabled}}, disabled{{end}})</td></tr>{{end}}
{{if .Report.TariffConfigured}}<tr><th>Tariff</th><td>{{.Report.Tier}}</td></tr>{{end}}
</table>

<h2>Windows</h2>
<table>
{{range .Report.Entries}}<tr><th>{{.Item.Name}} <small>({{.Item.Value}})</small></th><td class="{{stateClass .State}}">{{.Window}} {{.State}}</td></tr>
{{else}}<tr><td>none configured</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Prefix</th><td>{{.Config.Prefix}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counters</h2>
<table>
<tr><th>Ticks</th><td>{{.Report.Ticks}}</td></tr>
<tr><th>Published</th><td>{{.Report.Published}}</td></tr>
<tr><th>Publish errors</th><td>{{.Report.PublishErrors}}</td></tr>
<tr><th>Work time</th><td>{{uptime .Report.WorkTime}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>Location</th><td>{{.Config.Location}}</td></tr>
<tr><th>Week starts</th><td>{{.Config.FirstDayOfWeek}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/tasklist.json">Task list</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
