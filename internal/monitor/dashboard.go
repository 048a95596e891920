package monitor

// dashboardHTML frames the chart pages, the PNG render, and a live cycle
// tail. Served at /debug/haptics.
const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<title>HapTable Debug</title>
<style>
  body { background: #111; color: #ddd; font-family: monospace; margin: 16px; }
  h1 { font-size: 18px; }
  .row { display: flex; flex-wrap: wrap; gap: 16px; }
  iframe, img { border: 1px solid #333; background: #111; }
  #tail { height: 220px; overflow-y: scroll; border: 1px solid #333; padding: 8px; white-space: pre; }
</style>
</head>
<body>
<h1>HapTable Debug</h1>
<div class="row">
  <iframe src="/debug/charts/intensity" width="1420" height="660"></iframe>
</div>
<div class="row">
  <iframe src="/debug/charts/scene" width="920" height="920"></iframe>
  <img id="scene" src="/debug/scene.png" width="720" alt="scene render">
</div>
<h1>Cycle tail</h1>
<div id="tail"></div>
<script>
  var img = document.getElementById('scene');
  setInterval(function () { img.src = '/debug/scene.png?t=' + Date.now(); }, 2000);

  var tail = document.getElementById('tail');
  var src = new EventSource('/debug/cycles/tail');
  src.onmessage = function (ev) {
    var line = document.createElement('div');
    try {
      var c = JSON.parse(ev.data);
      line.textContent = c.seq + ' ' + c.state + ' levels=' + JSON.stringify(c.levels);
    } catch (e) {
      line.textContent = ev.data;
    }
    tail.appendChild(line);
    while (tail.childNodes.length > 200) { tail.removeChild(tail.firstChild); }
    tail.scrollTop = tail.scrollHeight;
  };
</script>
</body>
</html>
`
