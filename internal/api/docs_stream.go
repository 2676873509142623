package api

const streamDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Event Stream · quickpeek</title>
  <style>
    * { box-sizing: border-box; }
    body { margin: 0; background: #0d1117; color: #c9d1d9; font: 14px/1.6 -apple-system, "Segoe UI", sans-serif; }
    a { color: #58a6ff; text-decoration: none; }
    nav { display: flex; align-items: center; gap: 8px; padding: 10px 24px; border-bottom: 1px solid #21262d; background: #161b22; }
    nav .brand { font-weight: 600; color: #f0f6fc; }
    nav .sep { color: #484f58; }
    nav .back { margin-left: auto; font-size: 12px; }
    .layout { display: grid; grid-template-columns: 200px minmax(0, 860px); gap: 32px; padding: 24px; }
    aside { position: sticky; top: 24px; align-self: start; font-size: 13px; }
    aside h4 { margin: 0 0 8px; color: #8b949e; text-transform: uppercase; font-size: 11px; letter-spacing: .06em; }
    aside ul { list-style: none; margin: 0; padding: 0; }
    aside li { padding: 3px 0; }
    h1 { margin: 0; color: #f0f6fc; font-size: 26px; }
    h2 { margin-top: 36px; padding-bottom: 6px; border-bottom: 1px solid #21262d; color: #f0f6fc; font-size: 18px; }
    h3 { color: #e6edf3; font-size: 15px; }
    .subtitle { margin-top: 4px; color: #8b949e; }
    code { font: 12.5px ui-monospace, SFMono-Regular, Menlo, monospace; background: #161b22; padding: 1px 5px; border-radius: 4px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px 14px; overflow-x: auto; }
    pre code { padding: 0; background: none; }
    table { width: 100%; border-collapse: collapse; font-size: 13px; }
    th, td { text-align: left; padding: 6px 10px; border: 1px solid #30363d; vertical-align: top; }
    th { background: #161b22; color: #8b949e; font-weight: 600; }
    .endpoint { display: flex; gap: 10px; align-items: center; margin: 6px 0; font-family: ui-monospace, Menlo, monospace; }
    .endpoint .method { background: #1f6feb; color: #fff; border-radius: 4px; padding: 1px 8px; font-size: 11px; font-weight: 700; }
    .sse-block { background: #161b22; border-left: 3px solid #3fb950; padding: 10px 14px; font: 12.5px ui-monospace, Menlo, monospace; word-break: break-all; }
    .sse-key { color: #ff7b72; }
    .sse-value { color: #a5d6ff; }
    @media (max-width: 800px) { .layout { grid-template-columns: 1fr; } aside { position: static; } }
  </style>
</head>
<body>

<nav>
  <span class="brand">quickpeek</span>
  <span class="sep">/</span>
  <span class="current">Event Stream</span>
  <a class="back" href="/docs">← REST API Docs</a>
</nav>

<div class="layout">

  <aside>
    <h4>On this page</h4>
    <ul>
      <li><a href="#overview">Overview</a></li>
      <li><a href="#endpoints">Endpoints</a></li>
      <li><a href="#events">Event Types</a></li>
      <li><a href="#sse-format">SSE Event Format</a></li>
      <li><a href="#control">Control Messages</a></li>
      <li><a href="#config">Profile File</a></li>
      <li><a href="#notes">Notes</a></li>
    </ul>
  </aside>

  <main>
    <h1>Event Stream</h1>
    <p class="subtitle">Follow previews as they render, from any HTTP or WebSocket client.</p>

    <h2 id="overview">Overview</h2>
    <p>
      Every preview draws into an overlay on its origin tab. The same calls are mirrored
      to the stream: the panel opening, each page load clearing it, title updates, every
      captured frame and the panel closing. A remote viewer can rebuild the overlay from
      these events alone.
    </p>

    <h2 id="endpoints">Endpoints</h2>
    <div class="endpoint">
      <span class="method">GET</span>
      <span class="path">/api/v1/events</span>
    </div>
    <div class="endpoint">
      <span class="method">GET</span>
      <span class="path">/api/v1/ws</span>
    </div>

    <h3>Query Parameters</h3>
    <table>
      <thead>
        <tr><th>Name</th><th>Type</th><th>Required</th><th>Description</th></tr>
      </thead>
      <tbody>
        <tr>
          <td><code>types</code></td>
          <td>string</td>
          <td>No</td>
          <td>Comma-separated event types. Example: <code>?types=title,frame</code></td>
        </tr>
        <tr>
          <td><code>tab</code></td>
          <td>string</td>
          <td>No</td>
          <td>Only events for one hidden tab id, such as <code>1-3F2A9C</code>.</td>
        </tr>
      </tbody>
    </table>

    <h2 id="events">Event Types</h2>
    <table>
      <thead>
        <tr><th>Type</th><th>Sent when</th><th>Fields</th></tr>
      </thead>
      <tbody>
        <tr><td><code>open</code></td><td>The overlay panel is created</td><td><code>tab</code>, <code>origin</code>, <code>title</code></td></tr>
        <tr><td><code>clear</code></td><td>A new page load starts a capture pass</td><td><code>tab</code></td></tr>
        <tr><td><code>title</code></td><td>The panel title changes</td><td><code>title</code></td></tr>
        <tr><td><code>frame</code></td><td>A screenshot is appended</td><td><code>generation</code>, <code>index</code>, <code>format</code>, <code>bytes</code>, <code>image</code></td></tr>
        <tr><td><code>close</code></td><td>The preview is promoted, discarded or dismissed</td><td><code>tab</code></td></tr>
      </tbody>
    </table>
    <p><code>image</code> is a data URL and is omitted when the profile sets <code>include_images: false</code>.</p>

    <h2 id="sse-format">SSE Event Format</h2>
    <div class="sse-block">
      <span class="sse-key">event:</span> <span class="sse-value">frame</span><br/>
      <span class="sse-key">data:</span> <span class="sse-value">{"type":"frame","tab":"1-3F2A9C","origin":"1-77B0","generation":4,"index":2,"format":"png","bytes":48213,"at":"2026-01-02T15:04:05Z"}</span><br/>
    </div>
    <pre><code>curl -N 'http://127.0.0.1:8190/api/v1/events?types=title,frame'</code></pre>

    <h2 id="control">Control Messages</h2>
    <p>
      WebSocket clients receive the same JSON documents as text frames, after a
      <code>{"type":"hello","subscriber":"…"}</code> greeting. They can also act on a preview
      by sending the message the overlay panel sends:
    </p>
    <pre><code>{"message":"switch-to-newly-opened-tab","tabId":"1-3F2A9C"}
{"message":"close-newly-opened-tab","tabId":"1-3F2A9C"}
{"message":"dismiss-peek-overlay","tabId":"1-3F2A9C"}</code></pre>
    <p>Each one is answered with <code>{"type":"ack"}</code> or <code>{"type":"error","error":"…"}</code>.</p>

    <h2 id="config">Profile File</h2>
    <p>Set <code>PEEK_PROFILE_FILE</code> to a YAML file to tune the stream:</p>
    <pre><code>relay:
  types: [open, title, frame, close]
  include_images: false
  buffer_size: 512</code></pre>

    <h2 id="notes">Notes</h2>
    <ul>
      <li>
        <strong>Back-pressure:</strong> each subscriber has its own buffer. Events for a slow
        client are dropped rather than delaying capture.
      </li>
      <li>
        <strong>Read-only mode:</strong> with <code>PEEK_STREAM_READ_ONLY=true</code> the WebSocket
        rejects control messages.
      </li>
      <li>
        <strong>Authentication:</strong> none. Keep the daemon bound to <code>127.0.0.1</code>.
      </li>
    </ul>

  </main>
</div>

</body>
</html>`
