package api

const streamDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Debug Stream - Pinguard</title>
  <style>
    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    main { max-width: 860px; margin: 0 auto; padding: 32px 16px 64px; }
    h1 { margin: 0 0 8px; font-size: 28px; font-weight: 600; color: #e6edf3; }
    h2 {
      margin: 36px 0 12px;
      font-size: 18px;
      font-weight: 600;
      color: #e6edf3;
      padding-bottom: 8px;
      border-bottom: 1px solid #21262d;
    }
    code, pre { font-family: "SFMono-Regular", Consolas, Menlo, monospace; font-size: 13px; }
    pre {
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      padding: 12px 16px;
      overflow-x: auto;
    }
    table { width: 100%; border-collapse: collapse; font-size: 13px; }
    th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #21262d; }
    th { color: #8b949e; font-weight: 500; }
  </style>
</head>
<body>
<main>
  <p><a href="/docs">&larr; API reference</a></p>
  <h1>Debug Stream</h1>
  <p>Live debug log entries and registry snapshots, pushed as they are recorded.</p>

  <h2>Endpoints</h2>
  <table>
    <tr><th>Transport</th><th>Path</th></tr>
    <tr><td>Server-sent events</td><td><code>GET /api/v1/debug/stream</code></td></tr>
    <tr><td>WebSocket (text frames)</td><td><code>GET /api/v1/debug/ws</code></td></tr>
  </table>
  <p>Both accept an optional <code>?feeds=debug,registry</code> filter. Without it every feed is delivered.</p>

  <h2>Feeds</h2>
  <table>
    <tr><th>Feed</th><th>Payload</th></tr>
    <tr><td><code>debug</code></td><td>One debug entry: <code>{"timestamp","message","data"}</code>. Only emitted while debug mode is on.</td></tr>
    <tr><td><code>registry</code></td><td>The full pinned registry after every change: <code>[{"tab_id","url"}]</code>.</td></tr>
  </table>

  <h2>SSE format</h2>
  <pre>event: debug
data: {"timestamp":"2026-01-02T03:04:05.000Z","message":"Diverted navigation to new tab","data":{"tab_id":3}}</pre>
  <p>WebSocket frames carry <code>{"feed":"debug","payload":{...}}</code>.</p>

  <h2>Examples</h2>
  <pre>curl -N http://127.0.0.1:8190/api/v1/debug/stream?feeds=debug</pre>
  <pre>const es = new EventSource("/api/v1/debug/stream");
es.addEventListener("registry", (e) =&gt; console.log(JSON.parse(e.data)));</pre>

  <h2>Notes</h2>
  <p>A client that subscribes to <code>registry</code> first receives the latest registry snapshot, then every change after it.</p>
  <p>Slow clients are not waited for. Events that do not fit a client's buffer are dropped and counted in <code>stream_dropped</code> on <code>/api/v1/status</code>.</p>
</main>
</body>
</html>`
