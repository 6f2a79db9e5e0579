package cachedemo

import "net/http"

// handleIndex serves a small page driving the probe workflow from a
// browser: poll the probe endpoint, show the CDN-observable headers,
// and trigger a tag revalidation to watch the purge land.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setNoStoreHeaders(w.Header())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexPage))
}

const indexPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>CDN cache-tag demo</title>
<style>
body { font-family: monospace; max-width: 48rem; margin: 2rem auto; }
pre { background: #f4f4f4; padding: 1rem; overflow-x: auto; }
button { margin-right: 0.5rem; }
</style>
</head>
<body>
<h1>CDN cache-tag demo</h1>
<p>State: <strong id="state">idle</strong></p>
<p>
<button onclick="probe()">Probe</button>
<button onclick="revalidate()">Revalidate tag</button>
<button onclick="verify()">Verify purge</button>
</p>
<pre id="out">Press Probe to start.</pre>
<script>
var baseline = null;
function setState(s) { document.getElementById('state').textContent = s; }
function show(obj) { document.getElementById('out').textContent = JSON.stringify(obj, null, 2); }
async function observe() {
  var res = await fetch('/cdnprobe');
  var body = await res.json();
  return {
    body: body,
    age: res.headers.get('Age'),
    surrogateKey: res.headers.get('Surrogate-Key'),
    cacheControl: res.headers.get('Cache-Control')
  };
}
async function probe() {
  setState('probing');
  var obs = null;
  for (var i = 0; i < 5; i++) {
    obs = await observe();
    show(obs);
    if (Number(obs.age) > 0) break;
    await new Promise(function (r) { setTimeout(r, 2000); });
  }
  baseline = obs.body;
  setState('probed');
}
async function revalidate() {
  setState('revalidating');
  var res = await fetch('/revalidate?tag=cdnprobe');
  show(await res.json());
  setState('probed');
}
async function verify() {
  if (!baseline) { show({error: 'probe first'}); return; }
  setState('verifying');
  for (var i = 0; i < 5; i++) {
    var obs = await observe();
    show(obs);
    if (obs.body.generated_at > baseline.generated_at) {
      setState('verified');
      return;
    }
    await new Promise(function (r) { setTimeout(r, 2000); });
  }
  show({warning: 'purge may not have propagated yet'});
  setState('probed');
}
</script>
</body>
</html>
`
