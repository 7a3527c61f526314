package api

const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Pinguard API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    html, body { height: 100%; margin: 0; background: #0d1117; }
    .bar {
      display: flex;
      align-items: center;
      gap: 20px;
      height: 40px;
      padding: 0 16px;
      background: #161b22;
      border-bottom: 1px solid #30363d;
      font: 500 13px -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
      color: #e6edf3;
    }
    .bar a { color: #58a6ff; text-decoration: none; }
    .bar .spacer { flex: 1; }
    .api { height: calc(100% - 41px); }
  </style>
</head>
<body>
  <div class="bar">
    <span>pinguard</span>
    <span class="spacer"></span>
    <a href="/openapi.json">openapi.json</a>
    <a href="/docs/stream">Debug stream</a>
  </div>
  <div class="api">
    <elements-api
      apiDescriptionUrl="/openapi.json"
      router="hash"
      layout="sidebar"
      hideSchemas="true"
      tryItCredentialsPolicy="same-origin"
    />
  </div>
</body>
</html>`
