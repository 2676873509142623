package api

// docsHTML renders /openapi.json with Stoplight Elements. The stream
// endpoints are not OpenAPI operations, so they get their own page.
const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>quickpeek API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    .qp-links { position: fixed; top: 12px; right: 16px; z-index: 9999; display: flex; gap: 8px; }
    .qp-links a {
      background: #161b22; border: 1px solid #30363d; border-radius: 6px; color: #58a6ff;
      font: 500 12px -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      padding: 5px 12px; text-decoration: none;
    }
  </style>
</head>
<body style="height: 100vh; margin: 0; position: relative;">
  <nav class="qp-links">
    <a href="/docs/stream">Event Stream Docs →</a>
    <a href="/metrics">Metrics</a>
  </nav>
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`
