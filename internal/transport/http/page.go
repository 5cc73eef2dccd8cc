package httpx

const dashboardPageHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>AgentForge Engine</title>
  <style>
    :root {
      --bg: #08161f;
      --bg2: #102534;
      --card: rgba(12, 28, 39, 0.78);
      --line: #2a4b63;
      --text: #e5f4ff;
      --muted: #9bbacf;
      --accent: #54f2b2;
      --warn: #ffca63;
      --danger: #ff6b7d;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      color: var(--text);
      background: linear-gradient(130deg, var(--bg), var(--bg2));
      font-family: "Segoe UI", sans-serif;
      min-height: 100vh;
    }
    .shell { max-width: 1120px; margin: 0 auto; padding: 28px 18px 40px; }
    .headline { display: flex; justify-content: space-between; align-items: end; gap: 14px; margin-bottom: 18px; }
    h1 { margin: 0; letter-spacing: 0.04em; font-size: clamp(1.5rem, 2vw, 2.1rem); }
    .tag, .k, .mono { font-family: monospace; }
    .tag { color: var(--muted); font-size: 12px; }
    .cards { display: grid; grid-template-columns: repeat(6, minmax(0, 1fr)); gap: 10px; margin-bottom: 14px; }
    .card { background: var(--card); border: 1px solid var(--line); border-radius: 12px; padding: 12px; }
    .k { font-size: 11px; color: var(--muted); margin-bottom: 8px; text-transform: uppercase; letter-spacing: 0.06em; }
    .v { font-size: 1.3rem; font-weight: 700; }
    .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 10px; }
    .panel { background: var(--card); border: 1px solid var(--line); border-radius: 12px; padding: 12px; overflow: auto; max-height: 420px; }
    table { width: 100%; border-collapse: collapse; }
    th, td { padding: 8px; text-align: left; border-bottom: 1px solid rgba(42, 75, 99, 0.55); font-size: 13px; }
    th { font-size: 11px; color: var(--muted); text-transform: uppercase; }
    button { border-radius: 10px; border: 1px solid #3f6f91; background: rgba(84, 242, 178, 0.2); color: var(--text); padding: 10px 14px; cursor: pointer; }
    .ok { color: var(--accent); }
    .bad { color: var(--danger); }
    .warn { color: var(--warn); }
    @media (max-width: 920px) {
      .cards { grid-template-columns: repeat(2, minmax(0, 1fr)); }
      .grid { grid-template-columns: 1fr; }
    }
  </style>
</head>
<body>
  <main class="shell">
    <section class="headline">
      <div>
        <h1>AgentForge Engine</h1>
        <div class="tag">Live agent runs, request metrics, and the engine event stream.</div>
      </div>
      <button id="demoBtn">Run demo agent</button>
    </section>

    <section class="cards">
      <article class="card"><div class="k">Uptime</div><div id="uptime" class="v">-</div></article>
      <article class="card"><div class="k">Requests</div><div id="requests" class="v">-</div></article>
      <article class="card"><div class="k">Avg Latency</div><div id="latency" class="v">-</div></article>
      <article class="card"><div class="k">Req / Min</div><div id="rpm" class="v">-</div></article>
      <article class="card"><div class="k">Agents</div><div id="agents" class="v">-</div></article>
      <article class="card"><div class="k">Errors</div><div id="errors" class="v">-</div></article>
    </section>

    <section class="grid">
      <div class="panel">
        <table>
          <thead><tr><th>Agent</th><th>Type</th><th>Status</th><th>Done</th></tr></thead>
          <tbody id="rows"></tbody>
        </table>
      </div>
      <div class="panel"><table><tbody id="events"></tbody></table></div>
    </section>
  </main>
  <script>
    async function fetchJSON(url, opts) {
      const res = await fetch(url, opts);
      if (!res.ok) throw new Error(await res.text());
      return res.json();
    }

    async function refresh() {
      const m = await fetchJSON("/api/metrics");
      document.getElementById("uptime").textContent = Math.round(m.uptime_seconds) + "s";
      document.getElementById("requests").textContent = m.request_count;
      const latency = document.getElementById("latency");
      latency.textContent = Number(m.avg_latency_ms || 0).toFixed(1) + " ms";
      latency.className = "v " + (m.healthy ? "ok" : "warn");
      document.getElementById("rpm").textContent = m.requests_per_minute;
      document.getElementById("errors").textContent = m.error_count;
      document.getElementById("agents").textContent =
        Object.values(m.agent_counts || {}).reduce((a, b) => a + b, 0);

      const agents = await fetchJSON("/api/agents");
      const rows = document.getElementById("rows");
      rows.innerHTML = "";
      agents.forEach((a) => {
        const tr = document.createElement("tr");
        const cls = a.status === "working" ? "warn" : "ok";
        tr.innerHTML =
          '<td class="mono">' + a.id.slice(0, 14) + '</td>' +
          '<td>' + a.type + '</td>' +
          '<td class="' + cls + '">' + a.status + '</td>' +
          '<td class="mono">' + a.completed_tasks + '</td>';
        rows.appendChild(tr);
      });
    }

    function logEvent(frame) {
      const tbody = document.getElementById("events");
      const tr = document.createElement("tr");
      const p = frame.payload && frame.payload.payload ? frame.payload.payload : {};
      let detail = "";
      if (frame.type === "agent_progress") detail = p.step + "/" + p.total_steps + " " + p.current_step;
      if (frame.type === "task_failed") detail = p.error;
      const cls = frame.type === "task_failed" || frame.type === "demo_error" ? "bad" : "ok";
      tr.innerHTML = '<td class="mono ' + cls + '">' + frame.type + '</td><td>' + detail + '</td>';
      tbody.prepend(tr);
      while (tbody.children.length > 100) tbody.removeChild(tbody.lastChild);
    }

    const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onopen = () => ws.send(JSON.stringify({ type: "join_session", payload: { session_id: "dashboard" } }));
    ws.onmessage = (msg) => {
      const frame = JSON.parse(msg.data);
      logEvent(frame);
      if (frame.type === "task_completed" || frame.type === "agent_created") refresh().catch(console.error);
    };

    document.getElementById("demoBtn").addEventListener("click", () => {
      ws.send(JSON.stringify({ type: "request_agent_demo", payload: { type: "autonomous" } }));
    });
    refresh().catch(console.error);
    setInterval(() => refresh().catch(console.error), 5000);
  </script>
</body>
</html>`
