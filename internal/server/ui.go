package server

import "net/http"

// dashboardHTML is the single-page operator view: submit an intent, watch
// the backlog, and browse the sp index and recent memories. It talks only
// to the JSON API on the same origin.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>telos</title>
<style>
  body { font-family: ui-monospace, monospace; margin: 2rem auto; max-width: 60rem; color: #222; }
  h1 { font-size: 1.3rem; }
  section { margin-bottom: 2rem; }
  textarea, input { font: inherit; width: 100%; box-sizing: border-box; margin-bottom: .5rem; }
  button { font: inherit; padding: .3rem 1rem; }
  pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; }
  .status { color: #666; }
</style>
</head>
<body>
<h1>telos</h1>
<p class="status" id="health">loading…</p>

<section>
  <h2>Submit intent</h2>
  <textarea id="summary" rows="2" placeholder="What should happen?"></textarea>
  <input id="alignment" type="number" min="0" max="1" step="0.1" value="0.8" title="telos alignment">
  <button id="submit">Submit</button>
  <pre id="result" hidden></pre>
</section>

<section>
  <h2>Standard procedures</h2>
  <pre id="sp">loading…</pre>
</section>

<section>
  <h2>Recent memories</h2>
  <pre id="memory">loading…</pre>
</section>

<script>
async function refresh() {
  const health = await fetch('/healthz').then(r => r.json());
  document.getElementById('health').textContent =
    'phase: ' + health.phase + ' · backlog: ' + health.backlog;

  const sp = await fetch('/api/sp').then(r => r.json());
  document.getElementById('sp').textContent =
    JSON.stringify(sp, null, 2);

  const memory = await fetch('/api/memory?level=L1&limit=10').then(r => r.json());
  document.getElementById('memory').textContent =
    (memory.entries || []).map(e => e.summary).join('\n') || '(none yet)';
}

document.getElementById('submit').addEventListener('click', async () => {
  const summary = document.getElementById('summary').value.trim();
  if (!summary) return;
  const alignment = parseFloat(document.getElementById('alignment').value);
  const resp = await fetch('/api/intents', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({summary: summary, telos_alignment: alignment}),
  });
  const out = document.getElementById('result');
  out.hidden = false;
  out.textContent = JSON.stringify(await resp.json(), null, 2);
  setTimeout(refresh, 1000);
});

refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>
`

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}
