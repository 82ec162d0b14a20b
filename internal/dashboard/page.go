package dashboard

import (
	"fmt"
	"net/http"
)

// Page serves a minimal HTML page that streams hub messages.
func Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Tasksync Dashboard</title>
    <style>
        body { font-family: monospace; margin: 2em; }
        #stats { margin-bottom: 1em; }
        .divergence { color: #b00; }
        .divergence_resolved { color: #070; }
    </style>
</head>
<body>
    <h1>Tasksync</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <pre id="stats"></pre>
    <ul id="events"></ul>
    <script>
        const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
        ws.onmessage = (ev) => {
            const msg = JSON.parse(ev.data);
            if (msg.type === "stats") {
                document.getElementById("stats").textContent = JSON.stringify(msg.data, null, 2);
                return;
            }
            const li = document.createElement("li");
            li.className = msg.type;
            li.textContent = msg.timestamp + " " + msg.type + " " + JSON.stringify(msg.data);
            document.getElementById("events").prepend(li);
        };
    </script>
</body>
</html>`, r.Host)
}
