package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/irigb-decoder/internal/status"
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
	"stateOrUnknown": func(s status.RunState) string {
		if s == "" {
			return "UNKNOWN"
		}
		return string(s)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>IRIG-B Decoder</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.valid { color: green; font-weight: bold; }
.invalid { color: red; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>IRIG-B Decoder<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Run</h2>
<table>
<tr><th>Run ID</th><td>{{.RunID}}</td></tr>
<tr><th>State</th><td>{{stateOrUnknown .State}}</td></tr>
<tr><th>Source</th><td>{{.Config.Source}}</td></tr>
<tr><th>Sample Rate</th><td>{{printf "%.0f" .Config.SampleRate}} Hz</td></tr>
</table>

<h2>Last Frame</h2>
<table>
<tr><th>Frame</th><td id="last-frame">{{.LastFrame}}</td></tr>
<tr><th>Time</th><td id="last-time" class="valid">{{if .Last}}{{.Last}}{{else}}none{{end}}</td></tr>
<tr><th>Last Error</th><td id="last-error" class="invalid">{{.LastError}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Edges</th><td>{{.Stats.Edges}}</td></tr>
<tr><th>Pulses</th><td>{{.Stats.Pulses}}</td></tr>
<tr><th>Spikes Rejected</th><td>{{.Stats.SpikesRejected}}</td></tr>
<tr><th>Valid Frames</th><td id="frames-valid">{{.Stats.FramesValid}}</td></tr>
<tr><th>Invalid Frames</th><td id="frames-invalid">{{.Stats.FramesInvalid}}</td></tr>
<tr><th>Pulses Discarded</th><td>{{.Stats.PulsesDiscarded}}</td></tr>
<tr><th>Range Warnings</th><td>{{.Stats.RangeWarnings}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Spike Removal</th><td>{{if .Config.SpikeRemoval}}on{{else}}off{{end}}</td></tr>
<tr><th>Item Style</th><td>{{.Config.ItemStyle}}</td></tr>
<tr><th>Batch Size</th><td>{{.Config.BatchSize}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">Metrics</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var frameEl = document.getElementById("last-frame");
  var timeEl = document.getElementById("last-time");
  var errEl = document.getElementById("last-error");
  var validEl = document.getElementById("frames-valid");
  var invalidEl = document.getElementById("frames-invalid");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onopen = function() { setDot("ok", "live"); };
  ws.onclose = function() { setDot("err", "closed"); };
  ws.onerror = function() { setDot("err", "error"); };
  ws.onmessage = function(ev) {
    try {
      var msg = JSON.parse(ev.data);
      frameEl.textContent = msg.frame;
      if (msg.valid) {
        timeEl.textContent = msg.time.text;
        validEl.textContent = parseInt(validEl.textContent, 10) + 1;
      } else {
        errEl.textContent = msg.error;
        invalidEl.textContent = parseInt(invalidEl.textContent, 10) + 1;
      }
    } catch (e) {}
  };
})();
</script>
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
