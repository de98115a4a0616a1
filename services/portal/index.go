package portal

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const indexHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>candash</title>
<style>body{font-family:sans-serif;margin:1em}td,th{padding:2px 8px;text-align:left}</style>
</head><body>
<h1>candash</h1>
<p id="link">...</p>
<table id="params"><tr><th>ID</th><th>Name</th><th>Value</th></tr></table>
<h2>Definitions</h2>
<p><a href="/params">Download</a></p>
<form method="post" action="/upload" enctype="multipart/form-data">
<input type="file" name="file" accept=".json"><button>Upload</button></form>
<script>
async function refresh(){
  const s = await (await fetch('/api/status')).json();
  document.getElementById('link').textContent = 'Link: ' + s.status.link + ' (' + s.status.stats.rx_frames + ' frames)';
  const ps = await (await fetch('/api/params')).json();
  const t = document.getElementById('params');
  t.querySelectorAll('tr.p').forEach(r => r.remove());
  for (const p of ps) {
    const r = t.insertRow(); r.className = 'p';
    r.insertCell().textContent = p.id;
    r.insertCell().textContent = p.name;
    r.insertCell().textContent = p.updated_ms ? p.display : '-';
  }
}
refresh(); setInterval(refresh, 1000);
</script>
</body></html>`

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}
